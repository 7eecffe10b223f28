package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/ghsdash/core/metrics"
)

// PromSink records pipeline runs, layer sizes and API requests in Prometheus metrics.
type PromSink struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	features *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

// NewPromSink registers metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghs_pipeline_runs_total",
		Help: "Total number of pipeline runs",
	}, []string{"step", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghs_pipeline_duration_seconds",
		Help:    "Pipeline step duration",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"step"})
	features := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ghs_layer_features",
		Help: "Number of features loaded per layer",
	}, []string{"layer"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghs_http_requests_total",
		Help: "Total number of API requests",
	}, []string{"route", "code"})

	var err error
	if runs, err = register(reg, runs); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if features, err = register(reg, features); err != nil {
		return nil, err
	}
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	return &PromSink{runs: runs, duration: duration, features: features, requests: requests}, nil
}

// register reuses an already registered collector of the same type.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRun counts the run and observes its duration.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	status := "success"
	if !ev.Success {
		status = "failure"
	}
	s.runs.WithLabelValues(ev.Step, status).Inc()
	s.duration.WithLabelValues(ev.Step).Observe(ev.Duration.Seconds())
	return nil
}

// RecordLayerSize sets the feature gauge of a layer.
func (s *PromSink) RecordLayerSize(layer string, features int) error {
	s.features.WithLabelValues(layer).Set(float64(features))
	return nil
}

// RecordRequest counts an API request by route and status code.
func (s *PromSink) RecordRequest(ev coremetrics.RequestEvent) error {
	s.requests.WithLabelValues(ev.Route, strconv.Itoa(ev.Code)).Inc()
	return nil
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/ghsdash/core/factory"
	coremetrics "github.com/kilianp07/ghsdash/core/metrics"
)

// InfluxConfig holds the InfluxDB v2 connection settings.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterPipelineSink("nop", func(map[string]any) (coremetrics.PipelineSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterPipelineSink("prometheus", func(map[string]any) (coremetrics.PipelineSink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterPipelineSink("influx", func(conf map[string]any) (coremetrics.PipelineSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}

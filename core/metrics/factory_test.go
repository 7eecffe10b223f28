package metrics_test

import (
	"strings"
	"testing"

	"github.com/kilianp07/ghsdash/core/factory"
	metrics "github.com/kilianp07/ghsdash/core/metrics"
	_ "github.com/kilianp07/ghsdash/infra/metrics"
)

func TestMetricsFactory_Builtins(t *testing.T) {
	s, err := metrics.NewPipelineSink([]factory.ModuleConfig{{Type: "nop"}})
	if err != nil {
		t.Fatalf("create nop: %v", err)
	}
	if _, ok := s.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}
	_, err = metrics.NewPipelineSink([]factory.ModuleConfig{{Type: "missing"}})
	if err == nil || !strings.Contains(err.Error(), "influx") {
		t.Fatalf("expected unknown type error listing builtins, got %v", err)
	}
}

func TestMetricsFactory_InfluxRejectsUnknownKeys(t *testing.T) {
	_, err := metrics.NewPipelineSink([]factory.ModuleConfig{{
		Type: "influx",
		Conf: map[string]any{"url": "http://localhost:8086", "buckett": "ghs"},
	}})
	if err == nil || !strings.HasPrefix(err.Error(), "influx: ") {
		t.Fatalf("expected decode error for influx, got %v", err)
	}
}

func TestNewPipelineSink_Multi(t *testing.T) {
	s, err := metrics.NewPipelineSink(nil)
	if err != nil {
		t.Fatalf("create nop default: %v", err)
	}
	if _, ok := s.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}

	s, err = metrics.NewPipelineSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	if err != nil {
		t.Fatalf("create multi: %v", err)
	}
	m, ok := s.(*metrics.MultiSink)
	if !ok {
		t.Fatalf("expected MultiSink, got %T", s)
	}
	if len(m.Sinks) != 2 {
		t.Fatalf("expected 2 sinks, got %d", len(m.Sinks))
	}
}

package metrics

import (
	"errors"
	"fmt"
	"net"

	"github.com/kilianp07/ghsdash/core/factory"
)

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr exposes /metrics when non-empty, e.g. ":9102".
	PrometheusAddr string `json:"prometheus_addr"`
}

// Validate checks that every sink names a type and that the exporter
// address is host:port.
func (c Config) Validate() error {
	var errs []error
	for i, s := range c.Sinks {
		if s.Type == "" {
			errs = append(errs, fmt.Errorf("metrics.sinks[%d]: type is required", i))
		}
	}
	if c.PrometheusAddr != "" {
		if _, _, err := net.SplitHostPort(c.PrometheusAddr); err != nil {
			errs = append(errs, fmt.Errorf("metrics.prometheus_addr: %w", err))
		}
	}
	return errors.Join(errs...)
}

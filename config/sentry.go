package config

import (
	"fmt"
	"net/url"
	"os"
)

// SentryConfig defines settings for Sentry error monitoring. An empty DSN
// disables reporting.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Release          string  `json:"release"`
}

// SetDefaults takes the environment from APP_ENV, falling back to
// production.
func (c *SentryConfig) SetDefaults() {
	if c.Environment == "" {
		c.Environment = os.Getenv("APP_ENV")
	}
	if c.Environment == "" {
		c.Environment = "production"
	}
}

// Validate checks the DSN shape and the sample rate range.
func (c SentryConfig) Validate() error {
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return fmt.Errorf("sentry.traces_sample_rate must be within [0,1], got %v", c.TracesSampleRate)
	}
	if c.DSN == "" {
		return nil
	}
	u, err := url.Parse(c.DSN)
	if err != nil || u.Scheme == "" || u.Host == "" || u.User == nil {
		return fmt.Errorf("sentry.dsn: invalid dsn")
	}
	return nil
}

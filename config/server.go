package config

import "errors"

// ServerConfig configures the dashboard HTTP API.
type ServerConfig struct {
	Addr string `json:"addr"`
	// RateLimit is requests per second per client; negative disables limiting.
	RateLimit float64 `json:"rate_limit"`
	Burst     int     `json:"burst"`
	// RunsToken protects /api/runs with a bearer token when set.
	RunsToken         string `json:"runs_token"`
	ShutdownTimeoutMS int    `json:"shutdown_timeout_ms"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.RateLimit == 0 {
		c.RateLimit = 20
	}
	if c.Burst == 0 {
		c.Burst = 40
	}
	if c.ShutdownTimeoutMS == 0 {
		c.ShutdownTimeoutMS = 5000
	}
}

// Validate checks limits.
func (c ServerConfig) Validate() error {
	if c.Burst < 0 {
		return errors.New("server: burst must not be negative")
	}
	return nil
}

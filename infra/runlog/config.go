package runlog

import (
	"fmt"

	"github.com/kilianp07/ghsdash/core/runlog"
)

// Config selects and tunes the run ledger backend.
type Config struct {
	// Backend is one of "jsonl", "sqlite" or "memory".
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults applies default values for unset fields.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		switch c.Backend {
		case "sqlite":
			c.Path = "data/runs.db"
		default:
			c.Path = "data/runs.jsonl"
		}
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 90
	}
}

// Validate checks the backend name.
func (c Config) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite", "memory":
		return nil
	}
	return fmt.Errorf("runlog.backend: unknown backend %q", c.Backend)
}

// Open creates the configured store.
func Open(c Config) (runlog.Store, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Backend {
	case "sqlite":
		return NewSQLiteStore(c.Path)
	case "memory":
		return runlog.NewMemoryStore(), nil
	}
	return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
}

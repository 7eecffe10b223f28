package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/ghsdash/core/catalog"
	"github.com/kilianp07/ghsdash/core/metrics"
	"github.com/kilianp07/ghsdash/infra/mqtt"
	"github.com/kilianp07/ghsdash/infra/runlog"
	"github.com/kilianp07/ghsdash/infra/watch"
)

// EnvPrefix marks environment overrides, e.g. GHS_SERVER__ADDR=:9000.
const EnvPrefix = "GHS_"

// Config is the root configuration shared by every command.
type Config struct {
	Data       catalog.Config   `json:"data"`
	Stormwater StormwaterConfig `json:"stormwater"`
	Hazards    HazardsConfig    `json:"hazards"`
	Snap       SnapConfig       `json:"snap"`
	Pollution  PollutionConfig  `json:"pollution"`
	Server     ServerConfig     `json:"server"`
	Metrics    metrics.Config   `json:"metrics"`
	RunLog     runlog.Config    `json:"runlog"`
	Sentry     SentryConfig     `json:"sentry"`
	MQTT       mqtt.Config      `json:"mqtt"`
	Watch      watch.Config     `json:"watch"`
	Logging    LoggingConfig    `json:"logging"`
}

// Load reads a yaml or json file, applies GHS_ environment overrides, fills
// defaults and validates every section. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Data.SetDefaults()
	c.Stormwater.SetDefaults()
	c.Hazards.SetDefaults()
	c.Snap.SetDefaults()
	c.Pollution.SetDefaults()
	c.Server.SetDefaults()
	c.RunLog.SetDefaults()
	c.Watch.SetDefaults()
	c.Logging.SetDefaults()
	c.Sentry.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks the sections used by every command. Pipeline sections are
// validated by the command that runs them.
func (c Config) Validate() error {
	return errors.Join(
		wrap("data", c.Data.Validate()),
		c.Server.Validate(),
		c.RunLog.Validate(),
		c.Watch.Validate(),
		c.MQTT.Validate(),
		c.Logging.Validate(),
		c.Sentry.Validate(),
		c.Metrics.Validate(),
	)
}

func wrap(section string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", section, err)
}

// Package config loads the service configuration from a YAML or JSON file
// with environment variable overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/charujain10/smartchair-dispatch/api"
	"github.com/charujain10/smartchair-dispatch/core/dispatch"
	"github.com/charujain10/smartchair-dispatch/core/fleet"
	"github.com/charujain10/smartchair-dispatch/core/queue"
	"github.com/charujain10/smartchair-dispatch/core/ride"
	"github.com/charujain10/smartchair-dispatch/infra/archive"
	"github.com/charujain10/smartchair-dispatch/infra/mqtt"
)

// MetricsConfig selects the observability sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// Config is the root configuration document.
type Config struct {
	HTTP     api.Config      `json:"http"`
	MQTT     mqtt.Config     `json:"mqtt"`
	Fleet    fleet.Config    `json:"fleet"`
	Queue    queue.Config    `json:"queue"`
	Ride     ride.Config     `json:"ride"`
	Dispatch dispatch.Config `json:"dispatch"`
	Metrics  MetricsConfig   `json:"metrics"`
	Archive  archive.Config  `json:"archive"`
}

// Load reads the file at path, applies SC_ environment overrides
// (SC_MQTT__BROKER maps to mqtt.broker) and fills in defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
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
	if err := k.Load(env.Provider("SC_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "sc_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if cfg.MQTT.Broker != "" {
		if err := cfg.MQTT.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// SetDefaults fills every section's defaults.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.MQTT.SetDefaults()
	c.Fleet.SetDefaults()
	c.Queue.SetDefaults()
	c.Ride.SetDefaults()
	c.Dispatch.SetDefaults()
}

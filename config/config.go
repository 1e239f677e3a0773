package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tomo-delivery/dispatchd/core/dispatch"
	"github.com/tomo-delivery/dispatchd/core/metrics"
	"github.com/tomo-delivery/dispatchd/infra/mqtt"
	"github.com/tomo-delivery/dispatchd/infra/postgres"
	"github.com/tomo-delivery/dispatchd/infra/redisdir"
)

type Config struct {
	HTTP     HTTPConfig      `json:"http"`
	MQTT     mqtt.Config     `json:"mqtt"`
	Redis    redisdir.Config `json:"redis"`
	Postgres postgres.Config `json:"postgres"`
	Dispatch dispatch.Config `json:"dispatch"`
	Location LocationConfig  `json:"location"`
	Metrics  metrics.Config  `json:"metrics"`
}

// HTTPConfig configures the public API listener. An empty auth token
// disables bearer authentication.
type HTTPConfig struct {
	Addr      string `json:"addr"`
	AuthToken string `json:"auth_token"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// LocationConfig configures the position ingestion gate.
type LocationConfig struct {
	ThrottleMS int `json:"throttle_ms"`
}

func (c *LocationConfig) SetDefaults() {
	if c.ThrottleMS == 0 {
		c.ThrottleMS = 5000
	}
}

func (c LocationConfig) Validate() error {
	if c.ThrottleMS < 0 {
		return fmt.Errorf("throttle_ms must not be negative")
	}
	return nil
}

// Throttle returns the minimum spacing between accepted samples.
func (c LocationConfig) Throttle() time.Duration {
	return time.Duration(c.ThrottleMS) * time.Millisecond
}

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
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.HTTP.SetDefaults()
	cfg.Location.SetDefaults()
	cfg.Dispatch.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.Dispatch.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Location.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

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

	"github.com/turion/turionlink/infra/mqtt"
	"github.com/turion/turionlink/infra/telemetry"
)

type Config struct {
	Printer   mqtt.Config      `json:"printer"`
	Server    ServerConfig     `json:"server"`
	Metrics   MetricsConfig    `json:"metrics"`
	Telemetry telemetry.Config `json:"telemetry"`
}

// ServerConfig configures the OctoPrint-compatible front-end.
type ServerConfig struct {
	Addr string `json:"addr"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":9931"
	}
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":9932"
	}
}

// Load reads the configuration file (yaml or json by extension) and applies
// TL_-prefixed environment overrides, TL_PRINTER__HOST for printer.host.
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
	if err := k.Load(env.Provider("TL_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "tl_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Printer.SetDefaults()
	cfg.Server.SetDefaults()
	cfg.Metrics.SetDefaults()
	return &cfg, nil
}

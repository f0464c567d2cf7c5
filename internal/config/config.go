package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/warden/internal/logger"
	"github.com/loykin/warden/internal/store"
)

// InstanceConfig describes the engine instance this supervisor manages.
type InstanceConfig struct {
	Name          string   `mapstructure:"name"`
	Executable    string   `mapstructure:"executable"`
	Args          []string `mapstructure:"args"`
	WorkDir       string   `mapstructure:"workdir"`
	Port          uint16   `mapstructure:"port"`
	Security      string   `mapstructure:"security"`   // trusted|safe|isolated
	Visibility    string   `mapstructure:"visibility"` // public|private|hidden
	Primary       bool     `mapstructure:"primary"`
	ArtifactID    string   `mapstructure:"artifact_id"`
	ArtifactPath  string   `mapstructure:"artifact_path"`
	CaptureOutput bool     `mapstructure:"capture_output"`
	HighPriority  bool     `mapstructure:"high_priority"`
}

// InteropConfig configures the loopback endpoint the engine queries.
type InteropConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// MetricsConfig configures the Prometheus endpoint; empty disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// HistoryConfig selects the lifecycle event sink.
type HistoryConfig struct {
	Driver string `mapstructure:"driver"` // "log" (default) or "clickhouse"
	Addr   string `mapstructure:"addr"`
	Table  string `mapstructure:"table"`
}

// Config is the top-level TOML structure.
type Config struct {
	Instance InstanceConfig `mapstructure:"instance"`
	Interop  InteropConfig  `mapstructure:"interop"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Store    store.Config   `mapstructure:"store"`
	History  HistoryConfig  `mapstructure:"history"`
	Log      logger.Config  `mapstructure:"log"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		v.SetConfigType(ext)
	} else {
		v.SetConfigType("toml")
	}

	v.SetDefault("interop.listen", "127.0.0.1:5579")
	v.SetDefault("history.driver", "log")
	v.SetDefault("history.table", "warden_events")
	v.SetDefault("instance.security", string(store.SecuritySafe))
	v.SetDefault("instance.visibility", string(store.VisibilityPublic))
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Instance.Name == "" {
		return fmt.Errorf("instance.name is required")
	}
	if c.Instance.Executable == "" {
		return fmt.Errorf("instance.executable is required")
	}
	if c.Instance.Port == 0 {
		return fmt.Errorf("instance.port must be nonzero")
	}
	switch store.SecurityLevel(c.Instance.Security) {
	case store.SecurityTrusted, store.SecuritySafe, store.SecurityIsolated:
	default:
		return fmt.Errorf("instance.security %q not one of trusted|safe|isolated", c.Instance.Security)
	}
	switch store.Visibility(c.Instance.Visibility) {
	case store.VisibilityPublic, store.VisibilityPrivate, store.VisibilityHidden:
	default:
		return fmt.Errorf("instance.visibility %q not one of public|private|hidden", c.Instance.Visibility)
	}
	switch c.History.Driver {
	case "", "log", "clickhouse":
	default:
		return fmt.Errorf("history.driver %q not one of log|clickhouse", c.History.Driver)
	}
	return nil
}

// Package config loads and validates the daemon configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tillsync/tillsync/internal/engine"
)

// DatabaseConfig holds the local store configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RegistryConfig points at the entity registry declaration.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig holds backend connection configuration.
type RemoteConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig holds sync engine configuration.
type SyncConfig struct {
	Interval       time.Duration `yaml:"interval"`
	PushBatchSize  int           `yaml:"push_batch_size"`
	ConflictPolicy string        `yaml:"conflict_policy"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config represents the complete daemon configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Registry RegistryConfig `yaml:"registry"`
	Remote   RemoteConfig   `yaml:"remote"`
	Sync     SyncConfig     `yaml:"sync"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "tillsync.db"
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 30 * time.Second
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = 60 * time.Second
	}
	if cfg.Sync.PushBatchSize == 0 {
		cfg.Sync.PushBatchSize = engine.DefaultPushBatchSize
	}
	if cfg.Sync.ConflictPolicy == "" {
		cfg.Sync.ConflictPolicy = engine.LastPullWins{}.Name()
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "localhost:9184"
	}
}

// Validate checks the configuration for fatal mistakes. A bad value here is
// a startup error, never something to limp along with.
func (c *Config) Validate() error {
	if c.Registry.Path == "" {
		return fmt.Errorf("registry.path is required")
	}
	if c.Remote.URL == "" {
		return fmt.Errorf("remote.url is required")
	}
	if c.Sync.Interval < time.Second {
		return fmt.Errorf("sync.interval must be at least 1s")
	}
	if c.Sync.PushBatchSize < 1 {
		return fmt.Errorf("sync.push_batch_size must be positive")
	}
	if _, err := engine.PolicyByName(c.Sync.ConflictPolicy); err != nil {
		return fmt.Errorf("sync.conflict_policy: %w", err)
	}
	return nil
}

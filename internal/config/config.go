package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete arlift configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Registry RegistryConfig `yaml:"registry"`
	Sync     SyncConfig     `yaml:"sync"`
}

// AppConfig configures the application directory to deploy
type AppConfig struct {
	Dir string `yaml:"dir"`

	// Exclude lists doublestar glob patterns matched against forward-slash
	// relative paths; matching tracked files are never deployed.
	Exclude []string `yaml:"exclude"`
}

// GatewayConfig configures the content-addressed storage gateway
type GatewayConfig struct {
	URL            string `yaml:"url"`
	APIKeyFile     string `yaml:"api_key_file"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RegistryConfig configures the deployment name registry
type RegistryConfig struct {
	URL            string `yaml:"url"`
	NamePrefix     string `yaml:"name_prefix"`
	TTLSeconds     int    `yaml:"ttl_seconds"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SyncConfig configures deployment bookkeeping behavior
type SyncConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.App.Dir = os.ExpandEnv(c.App.Dir)
	c.Gateway.URL = os.ExpandEnv(c.Gateway.URL)
	c.Gateway.APIKeyFile = os.ExpandEnv(c.Gateway.APIKeyFile)
	c.Registry.URL = os.ExpandEnv(c.Registry.URL)
	c.Registry.NamePrefix = os.ExpandEnv(c.Registry.NamePrefix)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 120
	}
	if c.Registry.TimeoutSeconds == 0 {
		c.Registry.TimeoutSeconds = 30
	}
	if c.Registry.TTLSeconds == 0 {
		c.Registry.TTLSeconds = 3600
	}
	if c.Sync.HistoryLimit == 0 {
		c.Sync.HistoryLimit = 20
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.App.Dir == "" {
		return fmt.Errorf("app.dir is required")
	}
	if !filepath.IsAbs(c.App.Dir) {
		return fmt.Errorf("app.dir must be an absolute path: %s", c.App.Dir)
	}

	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	if c.Registry.URL == "" {
		return fmt.Errorf("registry.url is required")
	}

	if c.Gateway.TimeoutSeconds < 0 {
		return fmt.Errorf("gateway.timeout_seconds must not be negative")
	}
	if c.Registry.TimeoutSeconds <= 0 {
		return fmt.Errorf("registry.timeout_seconds must be positive (the name write needs a bounded wait)")
	}
	if c.Sync.HistoryLimit < 0 {
		return fmt.Errorf("sync.history_limit must not be negative")
	}

	return nil
}

// GatewayTimeout returns the upload timeout as a duration.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// RegistryTimeout returns the bounded wait for a single registry write.
func (c *Config) RegistryTimeout() time.Duration {
	return time.Duration(c.Registry.TimeoutSeconds) * time.Second
}

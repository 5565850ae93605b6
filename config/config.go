// Package config handles huntd configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML duration
// strings like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level huntd configuration.
type Config struct {
	DBPath    string          `yaml:"db_path"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
	API       APIConfig       `yaml:"api"`
}

// FetchConfig controls the HTTP fetcher and its cache.
type FetchConfig struct {
	Timeout   Duration `yaml:"timeout"`
	MaxBytes  int64    `yaml:"max_bytes"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// SchedulerConfig controls the evaluation loop.
type SchedulerConfig struct {
	Interval    Duration `yaml:"interval"`
	Concurrency int      `yaml:"concurrency"`
}

// NotifyConfig selects an output backend.
type NotifyConfig struct {
	Kind    string `yaml:"kind"` // stdout | webhook
	URL     string `yaml:"url"`  // for webhook
	Retries int    `yaml:"retries"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Addr      string `yaml:"addr"`
	TokenHash string `yaml:"token_hash"` // bcrypt hash of the bearer token
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "huntd.db"
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = Duration(30 * time.Second)
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 << 20
	}
	if c.Fetch.CacheTTL <= 0 {
		c.Fetch.CacheTTL = Duration(2 * time.Minute)
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = Duration(5 * time.Minute)
	}
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = 4
	}
	if c.Notify.Kind == "" {
		c.Notify.Kind = "stdout"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}

func (c *Config) validate() error {
	switch c.Notify.Kind {
	case "stdout":
	case "webhook":
		if c.Notify.URL == "" {
			return fmt.Errorf("notify kind %q requires a url", c.Notify.Kind)
		}
	default:
		return fmt.Errorf("unknown notify kind %q", c.Notify.Kind)
	}
	return nil
}

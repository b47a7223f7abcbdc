package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the collector configuration.
const (
	DefaultHTTPPort           = 8080
	DefaultRetention          = 24 * time.Hour
	DefaultMaxPointsPerDevice = 10_000
	DefaultMaxBodyBytes       = 4 << 20
)

// Config holds the `collector:` section.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
}

// CollectorConfig holds all collector settings.
type CollectorConfig struct {
	HTTPPort           int           `yaml:"http_port"`
	SecretEnv          string        `yaml:"secret_env"`
	Retention          time.Duration `yaml:"retention"`
	MaxPointsPerDevice int           `yaml:"max_points_per_device"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes"`
	LogLevel           string        `yaml:"log_level"`
}

// Secret returns the expected bearer secret resolved from the environment.
func (c CollectorConfig) Secret() string {
	if c.SecretEnv == "" {
		return ""
	}
	return os.Getenv(c.SecretEnv)
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("collector config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applying defaults before validation.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("collector config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("collector config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Collector: CollectorConfig{
			HTTPPort:           DefaultHTTPPort,
			Retention:          DefaultRetention,
			MaxPointsPerDevice: DefaultMaxPointsPerDevice,
			MaxBodyBytes:       DefaultMaxBodyBytes,
			LogLevel:           "info",
		},
	}
}

func validate(cfg *Config) error {
	c := cfg.Collector
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("collector.http_port %d is out of range [1, 65535]", c.HTTPPort)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("collector.retention must be positive")
	}
	if c.MaxPointsPerDevice <= 0 {
		return fmt.Errorf("collector.max_points_per_device must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("collector.max_body_bytes must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("collector.log_level %q unknown", c.LogLevel)
	}
	return nil
}

package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultFlushInterval     = 5 * time.Second
	DefaultMaxBatch          = 300
	DefaultRequestTimeout    = 30 * time.Second
	DefaultStopTimeout       = 10 * time.Second
	DefaultMaxAccuracy       = 50.0
	DefaultBackoffInitial    = 5 * time.Second
	DefaultBackoffMax        = 5 * time.Minute
	DefaultBatteryPath       = "/sys/class/power_supply/BAT0"
	DefaultBaud              = 9600
	DefaultUERE              = 5.0
	DefaultSimulatedInterval = time.Second
	DefaultControlListen     = "127.0.0.1:8787"
	DefaultStatusInterval    = time.Second
)

// Config is the top-level configuration file. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// Endpoint is the base URL of the collection host. Batches are posted to
	// Endpoint + "/locations".
	Endpoint string `yaml:"endpoint"`

	// SecretEnv names the environment variable holding the bearer secret.
	SecretEnv string `yaml:"secret_env"`

	// FlushInterval is the period between flush cycles.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// MaxBatch caps the number of samples sent in one request.
	MaxBatch int `yaml:"max_batch"`

	// RequestTimeout bounds a single POST.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// StopTimeout bounds the final drain performed when updates stop.
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// MaxAccuracyMeters is the largest horizontal accuracy radius accepted.
	MaxAccuracyMeters float64 `yaml:"max_accuracy_meters"`

	// Compression is none | gzip.
	Compression string `yaml:"compression"`

	Backoff   BackoffConfig   `yaml:"backoff"`
	TLS       TLSConfig       `yaml:"tls"`
	Device    DeviceConfig    `yaml:"device"`
	FixSource FixSourceConfig `yaml:"fix_source"`
	Control   ControlConfig   `yaml:"control"`

	// LogLevel is debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// Secret returns the bearer secret resolved from the environment.
// Returns empty string if SecretEnv is unset or the variable is not found.
func (a AgentConfig) Secret() string {
	if a.SecretEnv == "" {
		return ""
	}
	return os.Getenv(a.SecretEnv)
}

// BackoffConfig enables capped exponential backoff after failed deliveries.
// When disabled every tick retries, matching a fixed retry interval.
type BackoffConfig struct {
	Enabled bool          `yaml:"enabled"`
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// TLSConfig holds TLS dial options for the collection endpoint.
type TLSConfig struct {
	// CAFile is an optional PEM bundle used instead of the system roots.
	CAFile string `yaml:"ca_file"`

	// InsecureSkipVerify disables certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// DeviceConfig configures the identity and battery providers.
type DeviceConfig struct {
	// ID pins the device identifier. When empty the id is read from IDFile,
	// or generated and written there on first start.
	ID string `yaml:"id"`

	// IDFile persists a generated identifier across restarts.
	IDFile string `yaml:"id_file"`

	// BatteryPath is a power-supply directory containing a capacity file.
	BatteryPath string `yaml:"battery_path"`
}

// FixSourceConfig selects where position fixes come from.
type FixSourceConfig struct {
	// Type is serial | file | simulated.
	Type string `yaml:"type"`

	// Device and Baud configure the serial port (type serial).
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	// Path is the NMEA log replayed by type file.
	Path string `yaml:"path"`

	// Interval paces file replay and simulated fixes.
	Interval time.Duration `yaml:"interval"`

	// UEREMeters converts HDOP into an accuracy radius.
	UEREMeters float64 `yaml:"uere_meters"`
}

// ControlConfig configures the local control and status surface.
type ControlConfig struct {
	// Listen is the host:port of the control HTTP server. Empty disables it.
	Listen string `yaml:"listen"`

	// StatusInterval is how often status is pushed to WebSocket clients.
	StatusInterval time.Duration `yaml:"status_interval"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			FlushInterval:     DefaultFlushInterval,
			MaxBatch:          DefaultMaxBatch,
			RequestTimeout:    DefaultRequestTimeout,
			StopTimeout:       DefaultStopTimeout,
			MaxAccuracyMeters: DefaultMaxAccuracy,
			Compression:       "none",
			Backoff: BackoffConfig{
				Initial: DefaultBackoffInitial,
				Max:     DefaultBackoffMax,
			},
			Device: DeviceConfig{
				BatteryPath: DefaultBatteryPath,
			},
			FixSource: FixSourceConfig{
				Type:       "simulated",
				Baud:       DefaultBaud,
				Interval:   DefaultSimulatedInterval,
				UEREMeters: DefaultUERE,
			},
			Control: ControlConfig{
				Listen:         DefaultControlListen,
				StatusInterval: DefaultStatusInterval,
			},
			LogLevel: "info",
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.Endpoint == "" {
		return fmt.Errorf("agent.endpoint is required")
	}
	u, err := url.Parse(a.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("agent.endpoint %q must be an http(s) URL", a.Endpoint)
	}
	if a.FlushInterval <= 0 {
		return fmt.Errorf("agent.flush_interval must be positive")
	}
	if a.MaxBatch <= 0 {
		return fmt.Errorf("agent.max_batch must be positive")
	}
	if a.RequestTimeout <= 0 {
		return fmt.Errorf("agent.request_timeout must be positive")
	}
	if a.StopTimeout <= 0 {
		return fmt.Errorf("agent.stop_timeout must be positive")
	}
	if a.MaxAccuracyMeters <= 0 {
		return fmt.Errorf("agent.max_accuracy_meters must be positive")
	}
	switch a.Compression {
	case "none", "gzip":
	default:
		return fmt.Errorf("agent.compression: unknown value %q", a.Compression)
	}
	if a.Backoff.Enabled {
		if a.Backoff.Initial <= 0 || a.Backoff.Max < a.Backoff.Initial {
			return fmt.Errorf("agent.backoff: need 0 < initial <= max")
		}
	}
	switch a.FixSource.Type {
	case "serial":
		if a.FixSource.Device == "" {
			return fmt.Errorf("agent.fix_source.device is required for type serial")
		}
		if a.FixSource.Baud <= 0 {
			return fmt.Errorf("agent.fix_source.baud must be positive")
		}
	case "file":
		if a.FixSource.Path == "" {
			return fmt.Errorf("agent.fix_source.path is required for type file")
		}
	case "simulated":
		if a.FixSource.Interval <= 0 {
			return fmt.Errorf("agent.fix_source.interval must be positive")
		}
	default:
		return fmt.Errorf("agent.fix_source: unknown type %q", a.FixSource.Type)
	}
	if a.FixSource.UEREMeters <= 0 {
		return fmt.Errorf("agent.fix_source.uere_meters must be positive")
	}
	if a.Control.Listen != "" && a.Control.StatusInterval <= 0 {
		return fmt.Errorf("agent.control.status_interval must be positive")
	}
	if _, err := ParseLevel(a.LogLevel); err != nil {
		return fmt.Errorf("agent.log_level: %w", err)
	}
	return nil
}

// ParseLevel maps a log_level string to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
}

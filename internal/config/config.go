package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultEndpoint       = "https://android.googleapis.com/auth"
	DefaultUserAgent      = "GoogleAuth/1.4"
	DefaultDiscoveryScope = "https://www.googleapis.com/auth/peopleapi.readwrite"
	DefaultWorkerCount    = 50
	DefaultMaxAttempts    = 10
	DefaultRetryDelay     = 1 * time.Second

	// MaxAttemptsLimit bounds the per-task retry budget.
	MaxAttemptsLimit = 10
)

var ErrMissingCredential = errors.New("missing credential: set ANDROID_REFRESH_TOKEN")

type Config struct {
	Logger     LoggerConfig    `mapstructure:"logger"`
	Worker     WorkerConfig    `mapstructure:"worker"`
	Probe      ProbeConfig     `mapstructure:"probe"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry"`
	Output     OutputConfig    `mapstructure:"output"`
	Credential string          `mapstructure:"credential"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type WorkerConfig struct {
	Count int `mapstructure:"count"`
	// QueueSize of 0 means 2x Count.
	QueueSize int `mapstructure:"queue_size"`
}

type ProbeConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
	DiscoveryScope string        `mapstructure:"discovery_scope"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		Worker: WorkerConfig{
			Count: DefaultWorkerCount,
		},
		Probe: ProbeConfig{
			Endpoint:       DefaultEndpoint,
			UserAgent:      DefaultUserAgent,
			MaxAttempts:    DefaultMaxAttempts,
			RetryDelay:     DefaultRetryDelay,
			DiscoveryScope: DefaultDiscoveryScope,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "aasprobe",
			Endpoint:    "localhost:4318",
			SampleRate:  1.0,
		},
		Output: OutputConfig{
			Format: "json",
		},
	}
}

// QueueCapacity returns the bounded queue size for the configured pool.
func (w WorkerConfig) QueueCapacity() int {
	if w.QueueSize > 0 {
		return w.QueueSize
	}
	return 2 * w.Count
}

// Validate checks everything that must hold before any worker is spawned.
func (c *Config) Validate() error {
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Worker.Count)
	}
	if c.Worker.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative, got %d", c.Worker.QueueSize)
	}
	if err := c.Probe.Validate(); err != nil {
		return err
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative, got %v", c.RateLimit.RequestsPerSecond)
	}
	switch c.Output.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q", c.Output.Format)
	}
	if c.Credential == "" {
		return ErrMissingCredential
	}
	return nil
}

func (p ProbeConfig) Validate() error {
	if p.Endpoint == "" {
		return errors.New("probe endpoint is required")
	}
	if p.MaxAttempts < 1 || p.MaxAttempts > MaxAttemptsLimit {
		return fmt.Errorf("max attempts must be between 1 and %d, got %d", MaxAttemptsLimit, p.MaxAttempts)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %s", p.RetryDelay)
	}
	return nil
}

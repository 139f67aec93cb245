// Package config provides configuration management for subproc.
package config

import (
	"fmt"
	"time"

	"github.com/victoralfred/gowritter/safepath"
	"gopkg.in/yaml.v3"

	"github.com/victoralfred/subproc/observability"
	"github.com/victoralfred/subproc/resilience"
)

// Config is the main configuration for subproc.
type Config struct {
	Runner      RunnerConfig                  `yaml:"runner"`
	RateLimiter resilience.RateLimiterConfig  `yaml:"rate_limiter"`
	Telemetry   observability.TelemetryConfig `yaml:"telemetry"`
	Audit       observability.AuditConfig     `yaml:"audit"`
}

// RunnerConfig configures the Runner defaults.
type RunnerConfig struct {
	// DefaultTimeout bounds every run that does not set its own deadline.
	// Zero means unbounded.
	DefaultTimeout Duration `yaml:"default_timeout"`

	// CloseFds is the default close-unrelated-descriptors policy.
	CloseFds bool `yaml:"close_fds"`

	// RestoreSignals is the default restore-dispositions policy (POSIX).
	RestoreSignals bool `yaml:"restore_signals"`

	// EnableMetrics enables the in-memory metrics collector.
	EnableMetrics bool `yaml:"enable_metrics"`

	// EnableTracing enables OpenTelemetry spans.
	EnableTracing bool `yaml:"enable_tracing"`

	// EnableAudit enables the audit trail.
	EnableAudit bool `yaml:"enable_audit"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Runner: RunnerConfig{
			DefaultTimeout: Duration{30 * time.Second},
			CloseFds:       true,
			RestoreSignals: true,
			EnableMetrics:  true,
			EnableTracing:  true,
			EnableAudit:    true,
		},
		RateLimiter: resilience.DefaultRateLimiterConfig(),
		Telemetry:   observability.DefaultTelemetryConfig(),
		Audit:       observability.DefaultAuditConfig(),
	}
}

// DevelopmentConfig returns configuration suitable for development.
func DevelopmentConfig() Config {
	cfg := DefaultConfig()
	cfg.Runner.DefaultTimeout = Duration{60 * time.Second}
	cfg.RateLimiter.DefaultLimit = 1000
	cfg.RateLimiter.DefaultBurst = 2000
	cfg.Audit.LogLevel = observability.AuditLogAll
	cfg.Audit.IncludeOutput = true
	return cfg
}

// ProductionConfig returns configuration suitable for production.
func ProductionConfig() Config {
	cfg := DefaultConfig()
	cfg.Runner.DefaultTimeout = Duration{30 * time.Second}
	cfg.RateLimiter.DefaultLimit = 100
	cfg.RateLimiter.DefaultBurst = 150
	cfg.Audit.LogLevel = observability.AuditLogFailures
	cfg.Audit.IncludeOutput = false
	return cfg
}

// Load reads and parses a YAML configuration file. basePath is the directory
// the file must live under; file is relative to it.
func Load(basePath, file string) (Config, error) {
	sp, err := safepath.New(basePath)
	if err != nil {
		return Config{}, fmt.Errorf("creating safe path: %w", err)
	}

	data, err := sp.ReadFile(file)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration on top of the defaults, so absent keys keep
// their default values.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate normalizes out-of-range values.
func (c *Config) Validate() error {
	if c.Runner.DefaultTimeout.Duration < 0 {
		c.Runner.DefaultTimeout = Duration{30 * time.Second}
	}

	if c.RateLimiter.DefaultLimit <= 0 {
		c.RateLimiter.DefaultLimit = 100
	}

	if c.RateLimiter.DefaultBurst <= 0 {
		c.RateLimiter.DefaultBurst = int(c.RateLimiter.DefaultLimit)
	}

	return nil
}

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration struct {
	time.Duration
}

// UnmarshalYAML unmarshals a duration from YAML.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	d.Duration = duration
	return nil
}

// MarshalYAML marshals a duration to YAML.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

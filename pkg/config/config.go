// Package config provides the YAML-backed configuration tree for
// paper-tiger: sentinel errors for load failures, environment overrides
// applied on top of a parsed file, narrowed to this server's own
// settings — listen port, auth mode, webhook registrations, chaos
// profile, clock boot mode, billing poll on/off flag, and log output
// (level, format, optional Loki shipping).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/EnaiaInc/paper-tiger/pkg/chaos"
	"gopkg.in/yaml.v3"
)

// Sentinel errors for Load, wrapped with fmt.Errorf("%w: ...") so callers
// can errors.Is against them while still seeing the offending path.
var (
	ErrFileNotFound = errors.New("configuration file not found")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
)

// ListenConfig controls the HTTP server's bind port.
type ListenConfig struct {
	// Port is the configured listen port. Zero means "pick an ephemeral
	// port" at startup.
	Port int `yaml:"port,omitempty"`
}

// AuthConfig controls the auth filter's Bearer/Basic strictness.
type AuthConfig struct {
	// Mode is "lenient" (any non-empty key accepted) or "strict" (key must
	// start with sk_test_ or sk_live_). Missing credentials are rejected
	// in both modes.
	Mode string `yaml:"mode,omitempty"`
	// AdminSecret signs the short-lived admin JWT gating /_config/*. A
	// blank secret disables the admin token issuer, so admin routes are
	// unauthenticated by default for local development.
	AdminSecret string `yaml:"admin_secret,omitempty"`
}

// WebhookConfig is one webhook endpoint registered at boot, in addition
// to any registered later via POST /_config/webhooks/:id.
type WebhookConfig struct {
	ID     string   `yaml:"id"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events,omitempty"`
}

// ClockConfig sets the virtual clock's mode at boot.
type ClockConfig struct {
	// Mode is "real", "accelerated", or "manual".
	Mode string `yaml:"mode,omitempty"`
	// Multiplier applies only to accelerated mode.
	Multiplier int64 `yaml:"multiplier,omitempty"`
}

// BillingConfig controls the billing engine's background poll loop.
type BillingConfig struct {
	// Enabled disables the billing engine's periodic poll loop entirely
	// when false.
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls where and how structured logs are written.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level,omitempty"`
	// Format is "text" or "json".
	Format string `yaml:"format,omitempty"`
	// LokiURL, when set, additionally ships every log record to this
	// Loki push endpoint (e.g. "http://localhost:3100/loki/api/v1/push").
	LokiURL string `yaml:"loki_url,omitempty"`
	// LokiLabels are extra Loki stream labels, merged with the default
	// job label.
	LokiLabels map[string]string `yaml:"loki_labels,omitempty"`
}

// Config is the full paper-tiger configuration tree.
type Config struct {
	Listen   ListenConfig    `yaml:"listen,omitempty"`
	Auth     AuthConfig      `yaml:"auth,omitempty"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
	Chaos    chaos.Config    `yaml:"chaos,omitempty"`
	Clock    ClockConfig     `yaml:"clock,omitempty"`
	Billing  BillingConfig   `yaml:"billing,omitempty"`
	Logging  LoggingConfig   `yaml:"logging,omitempty"`
}

// Default returns a Config with the server's out-of-the-box behavior:
// lenient auth, real-time clock, billing polling enabled.
func Default() Config {
	return Config{
		Auth:    AuthConfig{Mode: "lenient"},
		Clock:   ClockConfig{Mode: "real", Multiplier: 1},
		Billing: BillingConfig{Enabled: true},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and parses a YAML config file, then applies environment
// variable overrides on top of it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides layers PAPER_TIGER_* environment variables over a
// parsed config; environment always wins over the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAPER_TIGER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Listen.Port = port
		}
	}
	if v := os.Getenv("PAPER_TIGER_AUTO_START"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Billing.Enabled = enabled
		}
	}
	if v := os.Getenv("PAPER_TIGER_LOKI_URL"); v != "" {
		cfg.Logging.LokiURL = v
	}
}

// StartTime reads PAPER_TIGER_START, an optional Unix-seconds override for
// the clock's initial value (primarily for reproducible test fixtures).
// ok is false when the variable is unset or unparsable.
func StartTime() (value int64, ok bool) {
	v := os.Getenv("PAPER_TIGER_START")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SnapshotPath reads PAPER_TIGER_SNAPSHOT_PATH, the optional file path
// gating pkg/snapshot's load-at-startup/save-at-shutdown convenience
// facility. An empty return means snapshotting is disabled.
func SnapshotPath() string {
	return os.Getenv("PAPER_TIGER_SNAPSHOT_PATH")
}

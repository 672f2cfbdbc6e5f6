// Package config centralizes runtime configuration for vouchd. It loads a
// JSON configuration file and exposes a configuration struct with sensible
// defaults. Tests and development builds use defaults when the file is not
// present. Production operators should place a JSON file at
// /etc/vouchd/config.json or specify a different path via the CONFIG_FILE
// env var.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config holds configurable options for the vouchd service.
type Config struct {
	DBFile                 string  `json:"db_file"`
	Port                   int     `json:"port"`
	DocsDir                string  `json:"docs_dir"`
	LogBufferSize          int     `json:"log_buffer_size"`
	FreshnessWindowSecs    int     `json:"freshness_window_secs"`  // Max age of an envelope timestamp
	FutureSkewSecs         int     `json:"future_skew_secs"`       // Max forward clock skew tolerated
	RotationCooldownSecs   int     `json:"rotation_cooldown_secs"` // Min gap between successful rotations
	GracePeriod            bool    `json:"grace_period"`           // Accept unsigned messages with a warning
	GracePeriodEnds        string  `json:"grace_period_ends"`      // RFC3339 hint returned to unsigned senders
	RequestsPerSec         float64 `json:"requests_per_sec"`       // Per-client transport rate limit
	RequestBurst           int     `json:"request_burst"`
	NoncePruneIntervalSecs int     `json:"nonce_prune_interval_secs"`
}

var cfg *Config

// LoadConfig reads a JSON file at path. If the file does not exist or
// cannot be parsed, LoadConfig returns defaults (and no error) so that the
// application can run in development with minimal friction.
func LoadConfig(path string) (*Config, error) {
	// sensible defaults
	def := &Config{
		DBFile:                 "vouchd.db",
		Port:                   8080,
		DocsDir:                "docs",
		LogBufferSize:          200,
		FreshnessWindowSecs:    300,
		FutureSkewSecs:         120,
		RotationCooldownSecs:   3600,
		GracePeriod:            false,
		GracePeriodEnds:        "",
		RequestsPerSec:         10,
		RequestBurst:           20,
		NoncePruneIntervalSecs: 600,
	}

	// if no file path provided, return defaults
	if path == "" {
		cfg = def
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		// file missing or unreadable -> use defaults
		cfg = def
		return cfg, nil
	}

	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		// parse error -> use defaults
		cfg = def
		return cfg, nil
	}

	// merge defaults for any zero-value fields
	if c.DBFile == "" {
		c.DBFile = def.DBFile
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.DocsDir == "" {
		c.DocsDir = def.DocsDir
	}
	if c.LogBufferSize == 0 {
		c.LogBufferSize = def.LogBufferSize
	}
	if c.FreshnessWindowSecs == 0 {
		c.FreshnessWindowSecs = def.FreshnessWindowSecs
	}
	if c.FutureSkewSecs == 0 {
		c.FutureSkewSecs = def.FutureSkewSecs
	}
	if c.RotationCooldownSecs == 0 {
		c.RotationCooldownSecs = def.RotationCooldownSecs
	}
	if c.RequestsPerSec == 0 {
		c.RequestsPerSec = def.RequestsPerSec
	}
	if c.RequestBurst == 0 {
		c.RequestBurst = def.RequestBurst
	}
	if c.NoncePruneIntervalSecs == 0 {
		c.NoncePruneIntervalSecs = def.NoncePruneIntervalSecs
	}

	cfg = &c
	return cfg, nil
}

// Get returns the loaded configuration. If LoadConfig hasn't been called
// yet, it returns defaults.
func Get() *Config {
	if cfg == nil {
		// initialize with defaults
		LoadConfig("")
	}
	return cfg
}

// FreshnessWindow returns the freshness window as a duration.
func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowSecs) * time.Second
}

// FutureSkew returns the tolerated forward clock skew as a duration.
func (c *Config) FutureSkew() time.Duration {
	return time.Duration(c.FutureSkewSecs) * time.Second
}

// RotationCooldown returns the rotation cooldown as a duration.
func (c *Config) RotationCooldown() time.Duration {
	return time.Duration(c.RotationCooldownSecs) * time.Second
}

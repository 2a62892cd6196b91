// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

// Package config loads and validates process-wide configuration.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Defaults.
const (
	DefaultListenAddr        = ":8000"
	DefaultMetricsAddr       = "127.0.0.1:9100"
	DefaultLogFormat         = "json"
	DefaultJWTExpirationSecs = 3600
)

// Config is the process-wide configuration. The JWT secret and hashing
// costs are loaded once here and injected into constructors; nothing
// reads them from the environment at call time.
type Config struct {
	DatabaseURL string `koanf:"database_url"`
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	LogFormat   string `koanf:"log_format"`

	JWTSecret     string `koanf:"jwt_secret"`
	JWTExpiration int    `koanf:"jwt_expiration"` // seconds
	JWTLeeway     int    `koanf:"jwt_leeway"`     // seconds, clock-skew tolerance

	Argon2MemoryCost  uint32 `koanf:"argon2_memory_cost"` // KiB
	Argon2TimeCost    uint32 `koanf:"argon2_time_cost"`
	Argon2Parallelism uint8  `koanf:"argon2_parallelism"`

	LockThreshold        int `koanf:"lock_threshold"`
	LockDurationMinutes  int `koanf:"lock_duration_minutes"`
	DestructionThreshold int `koanf:"destruction_threshold"`
}

// AccessTokenTTL returns the configured JWT lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWTExpiration) * time.Second
}

// Leeway returns the configured verification clock-skew tolerance.
func (c *Config) Leeway() time.Duration {
	return time.Duration(c.JWTLeeway) * time.Second
}

// LockDuration returns the configured lockout window length.
func (c *Config) LockDuration() time.Duration {
	return time.Duration(c.LockDurationMinutes) * time.Minute
}

// Load reads configuration from an optional YAML file, then overlays any
// set command-line flags. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load flags").
				Wrap(err)
		}
	}

	cfg := &Config{
		ListenAddr:    DefaultListenAddr,
		MetricsAddr:   DefaultMetricsAddr,
		LogFormat:     DefaultLogFormat,
		JWTExpiration: DefaultJWTExpirationSecs,
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal config").
			Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required")
	}
	if c.JWTSecret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("jwt_secret is required")
	}
	if c.JWTExpiration <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("jwt_expiration", c.JWTExpiration).
			Errorf("jwt_expiration must be positive")
	}
	if c.DestructionThreshold > 0 && c.LockThreshold > 0 && c.DestructionThreshold <= c.LockThreshold {
		return oops.Code("CONFIG_INVALID").
			With("lock_threshold", c.LockThreshold).
			With("destruction_threshold", c.DestructionThreshold).
			Errorf("destruction_threshold must exceed lock_threshold")
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilchat/veilchat/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("reads yaml file", func(t *testing.T) {
		path := writeConfigFile(t, `
database_url: postgres://localhost:5432/veilchat
jwt_secret: super-secret
jwt_expiration: 7200
lock_threshold: 3
lock_duration_minutes: 15
destruction_threshold: 5
`)
		cfg, err := config.Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost:5432/veilchat", cfg.DatabaseURL)
		assert.Equal(t, 2*time.Hour, cfg.AccessTokenTTL())
		assert.Equal(t, 15*time.Minute, cfg.LockDuration())
		assert.Equal(t, config.DefaultListenAddr, cfg.ListenAddr)
	})

	t.Run("flags override file", func(t *testing.T) {
		path := writeConfigFile(t, `
database_url: postgres://localhost:5432/veilchat
jwt_secret: super-secret
listen_addr: ":8000"
`)
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("listen_addr", "", "")
		require.NoError(t, flags.Set("listen_addr", ":9999"))

		cfg, err := config.Load(path, flags)
		require.NoError(t, err)
		assert.Equal(t, ":9999", cfg.ListenAddr)
	})

	t.Run("jwt expiration defaults to one hour", func(t *testing.T) {
		path := writeConfigFile(t, `
database_url: postgres://localhost:5432/veilchat
jwt_secret: super-secret
`)
		cfg, err := config.Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, cfg.AccessTokenTTL())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load("/nonexistent/config.yaml", nil)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			DatabaseURL:   "postgres://localhost:5432/veilchat",
			JWTSecret:     "secret",
			JWTExpiration: 3600,
		}
	}

	t.Run("accepts complete config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("requires database_url", func(t *testing.T) {
		cfg := valid()
		cfg.DatabaseURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("requires jwt_secret", func(t *testing.T) {
		cfg := valid()
		cfg.JWTSecret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("requires positive jwt_expiration", func(t *testing.T) {
		cfg := valid()
		cfg.JWTExpiration = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("destruction threshold must exceed lock threshold", func(t *testing.T) {
		cfg := valid()
		cfg.LockThreshold = 5
		cfg.DestructionThreshold = 5
		assert.Error(t, cfg.Validate())

		cfg.DestructionThreshold = 6
		assert.NoError(t, cfg.Validate())
	})
}

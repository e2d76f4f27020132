package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Scheduler.Workers)
	require.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	require.Equal(t, 10, cfg.RateLimit.DefaultPerMinute)
	require.Equal(t, 300, cfg.Cache.TTLSeconds)
	require.Equal(t, "gpt-4o", cfg.Analyzer.Model)
	require.Equal(t, "screenshots", cfg.Storage.Prefix)
	require.False(t, cfg.Auth.Enabled)

	require.Equal(t, 5*time.Minute, cfg.CacheTTL())
	require.Equal(t, 30*time.Second, cfg.NavTimeout())
	require.Equal(t, 2*time.Minute, cfg.RateLimitMaxWait())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9090
scheduler:
  workers: 8
cache:
  ttl_seconds: 60
auth:
  enabled: true
  api_key: secret
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 8, cfg.Scheduler.Workers)
	require.Equal(t, time.Minute, cfg.CacheTTL())
	require.Equal(t, "secret", cfg.Auth.APIKey)
	// Defaults still apply for keys the file omits.
	require.Equal(t, 3, cfg.Scheduler.MaxAttempts)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("QADOC_SERVER_PORT", "9999")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Scheduler.Workers = 0 },
			wantErr: "scheduler.workers",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Scheduler.MaxAttempts = 0 },
			wantErr: "scheduler.max_attempts",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimit.DefaultPerMinute = 0 },
			wantErr: "rate_limit.default_per_minute",
		},
		{
			name:    "negative cache ttl",
			mutate:  func(c *Config) { c.Cache.TTLSeconds = -1 },
			wantErr: "cache.ttl_seconds",
		},
		{
			name:    "auth enabled without key",
			mutate:  func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" },
			wantErr: "auth.api_key",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/parkrun-harvester/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "https://www.parkrun.org.uk", cfg.BaseURL)
	assert.Equal(t, "page", cfg.URLMode)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "info", cfg.Logging)
	assert.Equal(t, BackendFS, cfg.Cache.Backend)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Address)
	assert.Equal(t, "harvest", cfg.Cache.Redis.Prefix)

	assert.Equal(t, 5, cfg.Fetch.MaxRetries)
	assert.InDelta(t, 1.0, cfg.Fetch.BackoffFactor, 1e-9)
	assert.InDelta(t, 120.0, cfg.Fetch.MaxBackoffSeconds, 1e-9)
	assert.InDelta(t, 300.0, cfg.Fetch.CooldownSeconds, 1e-9)
	assert.InDelta(t, 2.0, cfg.Fetch.RequestDelaySeconds, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.False(t, cfg.Fetch.TLSBypass)

	assert.Equal(t, 3, cfg.Pagination.MaxConsecutiveFailures)
	assert.Equal(t, 1, cfg.Pagination.StartIndex)
	assert.False(t, cfg.Pagination.EmptyPageIsFailure)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	expected, err := Default()
	require.NoError(t, err)
	assert.Equal(t, expected, cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
event: bushy
urlMode: weekly
logging: debug
cache:
  backend: redis
  redis:
    address: redis:6379
fetch:
  maxRetries: 0
  backoffFactor: 0.5
  cooldownSeconds: 60
  timeout: 10s
  tlsBypass: true
pagination:
  maxConsecutiveFailures: 5
  emptyPageIsFailure: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bushy", cfg.Event)
	assert.Equal(t, "weekly", cfg.URLMode)
	assert.Equal(t, "debug", cfg.Logging)
	assert.Equal(t, BackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Address)
	assert.Equal(t, "harvest", cfg.Cache.Redis.Prefix, "unset nested values keep defaults")
	assert.Equal(t, 0, cfg.Fetch.MaxRetries)
	assert.InDelta(t, 0.5, cfg.Fetch.BackoffFactor, 1e-9)
	assert.InDelta(t, 60.0, cfg.Fetch.CooldownSeconds, 1e-9)
	assert.InDelta(t, 2.0, cfg.Fetch.RequestDelaySeconds, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.True(t, cfg.Fetch.TLSBypass)
	assert.Equal(t, 5, cfg.Pagination.MaxConsecutiveFailures)
	assert.True(t, cfg.Pagination.EmptyPageIsFailure)

	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "fetch: [unclosed")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:        "missing event",
			mutate:      func(c *Config) { c.Event = "" },
			expectError: true,
			errorMsg:    "event is required",
		},
		{
			name:        "unknown url mode",
			mutate:      func(c *Config) { c.URLMode = "monthly" },
			expectError: true,
			errorMsg:    "urlMode",
		},
		{
			name:        "unknown backend",
			mutate:      func(c *Config) { c.Cache.Backend = "s3" },
			expectError: true,
			errorMsg:    "cache.backend",
		},
		{
			name:        "unknown logging level",
			mutate:      func(c *Config) { c.Logging = "verbose" },
			expectError: true,
			errorMsg:    "logging",
		},
		{
			name:        "negative retries",
			mutate:      func(c *Config) { c.Fetch.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "fetch.maxRetries",
		},
		{
			name:        "negative cooldown",
			mutate:      func(c *Config) { c.Fetch.CooldownSeconds = -5 },
			expectError: true,
			errorMsg:    "fetch.cooldownSeconds",
		},
		{
			name:        "negative delay",
			mutate:      func(c *Config) { c.Fetch.RequestDelaySeconds = -1 },
			expectError: true,
			errorMsg:    "fetch.requestDelaySeconds",
		},
		{
			name:        "zero failure threshold",
			mutate:      func(c *Config) { c.Pagination.MaxConsecutiveFailures = 0 },
			expectError: true,
			errorMsg:    "pagination.maxConsecutiveFailures",
		},
		{
			name:        "zero start index",
			mutate:      func(c *Config) { c.Pagination.StartIndex = 0 },
			expectError: true,
			errorMsg:    "pagination.startIndex",
		},
		{
			name: "redis backend without address",
			mutate: func(c *Config) {
				c.Cache.Backend = BackendRedis
				c.Cache.Redis.Address = ""
			},
			expectError: true,
			errorMsg:    "cache.redis.address",
		},
		{
			name:   "zero delays are allowed",
			mutate: func(c *Config) { c.Fetch.RequestDelaySeconds = 0; c.Fetch.CooldownSeconds = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			cfg.Event = "bushy"
			tt.mutate(cfg)

			err = cfg.Validate()
			if !tt.expectError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestValidate_MissingEventSentinel(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.ErrorIs(t, cfg.Validate(), ErrEventRequired)
}

func TestConversions(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.Event = "bushy"
	cfg.Fetch.BackoffFactor = 0.5
	cfg.Fetch.RequestDelaySeconds = 1.5

	clientCfg := cfg.ClientConfig()
	assert.Equal(t, "bushy", clientCfg.Event)
	assert.Equal(t, client.URLModePage, clientCfg.Mode)
	assert.Equal(t, 5, clientCfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, clientCfg.Retry.BackoffFactor)
	assert.Equal(t, 120*time.Second, clientCfg.Retry.MaxBackoff)
	assert.Equal(t, []int{500, 502, 503, 504}, clientCfg.Retry.StatusForcelist)
	assert.Equal(t, 30*time.Second, clientCfg.Timeout)

	pacing := cfg.PacingConfig()
	assert.Equal(t, 1500*time.Millisecond, pacing.RequestDelay)
	assert.Equal(t, 300*time.Second, pacing.Cooldown)

	ctrl := cfg.ControllerConfig()
	assert.Equal(t, 1, ctrl.StartIndex)
	assert.Equal(t, 3, ctrl.MaxConsecutiveFailures)

	assert.Equal(t, "harvest", cfg.RedisPrefix())
	cfg.Cache.Redis.Prefix = ""
	assert.Equal(t, "harvest", cfg.RedisPrefix())
}

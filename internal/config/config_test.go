package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"LOG_LEVEL", "LOG_FORMAT", "SNAPSHOT_PATH", "AUTOCHECKS_BACKEND", "REDIS_ADDR",
	"REDIS_DB", "REDIS_KEY_PREFIX", "POSTGRES_DSN", "WORKERS", "METRICS_TEXTFILE", "WATCH_DEBOUNCE",
	"LEASE_KEY", "LEASE_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(EnvPrefix+key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, DefaultSnapshotPath, cfg.SnapshotPath)
	assert.Equal(t, BackendSnapshot, cfg.AutochecksBackend)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, DefaultRedisKeyPrefix, cfg.RedisKeyPrefix)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Empty(t, cfg.MetricsTextfile)
	assert.Equal(t, DefaultWatchDebounce, cfg.WatchDebounce)
	assert.Empty(t, cfg.LeaseKey)
	assert.Equal(t, DefaultLeaseTTL, cfg.LeaseTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHECKCONFIG_LOG_LEVEL", "debug")
	t.Setenv("CHECKCONFIG_LOG_FORMAT", "pretty")
	t.Setenv("CHECKCONFIG_SNAPSHOT_PATH", "/etc/checkconfig/site.yaml")
	t.Setenv("CHECKCONFIG_AUTOCHECKS_BACKEND", "Redis")
	t.Setenv("CHECKCONFIG_REDIS_ADDR", "redis:6379")
	t.Setenv("CHECKCONFIG_REDIS_DB", "3")
	t.Setenv("CHECKCONFIG_WORKERS", "16")
	t.Setenv("CHECKCONFIG_METRICS_TEXTFILE", "/var/lib/node_exporter/checkconfig.prom")
	t.Setenv("CHECKCONFIG_WATCH_DEBOUNCE", "1s")
	t.Setenv("CHECKCONFIG_LEASE_KEY", "checkconfig:publisher")
	t.Setenv("CHECKCONFIG_LEASE_TTL", "45s")

	cfg := Load()

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, "/etc/checkconfig/site.yaml", cfg.SnapshotPath)
	assert.Equal(t, BackendRedis, cfg.AutochecksBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, "/var/lib/node_exporter/checkconfig.prom", cfg.MetricsTextfile)
	assert.Equal(t, time.Second, cfg.WatchDebounce)
	assert.Equal(t, "checkconfig:publisher", cfg.LeaseKey)
	assert.Equal(t, 45*time.Second, cfg.LeaseTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHECKCONFIG_WORKERS", "many")
	t.Setenv("CHECKCONFIG_REDIS_DB", "")
	t.Setenv("CHECKCONFIG_WATCH_DEBOUNCE", "soon")

	cfg := Load()

	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, DefaultWatchDebounce, cfg.WatchDebounce)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"empty snapshot path", func(c *Config) { c.SnapshotPath = "" }, true},
		{"unknown backend", func(c *Config) { c.AutochecksBackend = "etcd" }, true},
		{"redis without address", func(c *Config) { c.AutochecksBackend = BackendRedis; c.RedisAddr = "" }, true},
		{"redis negative db", func(c *Config) { c.AutochecksBackend = BackendRedis; c.RedisDB = -1 }, true},
		{"postgres without dsn", func(c *Config) { c.AutochecksBackend = BackendPostgres }, true},
		{"postgres with dsn", func(c *Config) {
			c.AutochecksBackend = BackendPostgres
			c.PostgresDSN = "postgres://checkconfig@localhost/checkconfig"
		}, false},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"zero debounce", func(c *Config) { c.WatchDebounce = 0 }, true},
		{"lease without redis", func(c *Config) { c.LeaseKey = "k"; c.RedisAddr = "" }, true},
		{"lease ttl too short", func(c *Config) { c.LeaseKey = "k"; c.LeaseTTL = time.Millisecond }, true},
		{"lease", func(c *Config) { c.LeaseKey = "k" }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

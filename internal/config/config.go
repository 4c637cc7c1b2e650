// Package config provides configuration management for checkconfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CHECKCONFIG_"

// Autochecks backends.
const (
	BackendSnapshot = "snapshot"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const (
	// DefaultSnapshotPath is the snapshot file read when none is configured.
	DefaultSnapshotPath = "snapshot.yaml"

	// DefaultWorkers bounds concurrent resolutions.
	DefaultWorkers = 4

	// DefaultWatchDebounce is the quiet period before a snapshot reload.
	DefaultWatchDebounce = 200 * time.Millisecond

	// DefaultRedisKeyPrefix prefixes autochecks keys in Redis.
	DefaultRedisKeyPrefix = "autochecks:"

	// DefaultLeaseTTL is the expiry of the publisher lease.
	DefaultLeaseTTL = 30 * time.Second
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration.
type Config struct {
	// LogLevel is the zerolog level name.
	LogLevel string

	// LogFormat is "json" or "pretty".
	LogFormat string

	// SnapshotPath is the YAML snapshot file.
	SnapshotPath string

	// AutochecksBackend selects where discovered services are read from.
	AutochecksBackend string

	RedisAddr      string
	RedisDB        int
	RedisKeyPrefix string

	PostgresDSN string

	// Workers bounds concurrent resolutions of a batch.
	Workers int

	// MetricsTextfile is written after each batch when set.
	MetricsTextfile string

	// WatchDebounce is the quiet period before a snapshot reload.
	WatchDebounce time.Duration

	// LeaseKey enables publisher election among watch replicas. Only the
	// lease holder re-resolves and writes the metrics textfile.
	LeaseKey string

	// LeaseTTL is the expiry of the publisher lease.
	LeaseTTL time.Duration
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	cfg := &Config{
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "json"),
		SnapshotPath:      getEnvOrDefault("SNAPSHOT_PATH", DefaultSnapshotPath),
		AutochecksBackend: strings.ToLower(getEnvOrDefault("AUTOCHECKS_BACKEND", BackendSnapshot)),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisDB:           getEnvIntOrDefault("REDIS_DB", 0),
		RedisKeyPrefix:    getEnvOrDefault("REDIS_KEY_PREFIX", DefaultRedisKeyPrefix),
		PostgresDSN:       getEnvOrDefault("POSTGRES_DSN", ""),
		Workers:           getEnvIntOrDefault("WORKERS", DefaultWorkers),
		MetricsTextfile:   getEnvOrDefault("METRICS_TEXTFILE", ""),
		WatchDebounce:     getEnvDurationOrDefault("WATCH_DEBOUNCE", DefaultWatchDebounce),
		LeaseKey:          getEnvOrDefault("LEASE_KEY", ""),
		LeaseTTL:          getEnvDurationOrDefault("LEASE_TTL", DefaultLeaseTTL),
	}

	return cfg
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.LogFormat)
	}

	if c.SnapshotPath == "" {
		return fmt.Errorf("%w: snapshot path is empty", ErrInvalidConfig)
	}

	switch c.AutochecksBackend {
	case BackendSnapshot:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis backend needs %sREDIS_ADDR", ErrInvalidConfig, EnvPrefix)
		}
		if c.RedisDB < 0 {
			return fmt.Errorf("%w: redis db %d", ErrInvalidConfig, c.RedisDB)
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres backend needs %sPOSTGRES_DSN", ErrInvalidConfig, EnvPrefix)
		}
	default:
		return fmt.Errorf("%w: autochecks backend %q", ErrInvalidConfig, c.AutochecksBackend)
	}

	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.WatchDebounce <= 0 {
		return fmt.Errorf("%w: watch debounce must be positive", ErrInvalidConfig)
	}
	if c.LeaseKey != "" {
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: publisher lease needs %sREDIS_ADDR", ErrInvalidConfig, EnvPrefix)
		}
		if c.LeaseTTL < time.Second {
			return fmt.Errorf("%w: lease ttl must be at least 1s, got %s", ErrInvalidConfig, c.LeaseTTL)
		}
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable value as int or the default if not set or invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable value as a duration or the default if not set or invalid.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

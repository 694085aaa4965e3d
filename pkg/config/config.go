// Package config loads engine configuration from the environment and
// optional YAML seed files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend names accepted for the pluggable stores.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds everything the daemon needs to start.
type Config struct {
	// HTTPAddr is the listen address for health and metrics endpoints.
	HTTPAddr string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// SessionBackend selects the session store: memory or redis.
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// ActivityBackend selects the activity store: memory or sqlite.
	ActivityBackend string
	SQLitePath      string

	// ActivityRetentionDays bounds how long activity records are kept.
	ActivityRetentionDays int

	SessionTTL time.Duration

	// Cron schedules for the background jobs.
	SessionSweepSchedule  string
	SecuritySweepSchedule string
	CleanupSchedule       string

	LockoutThreshold int
	LockoutWindow    time.Duration
	LockoutDuration  time.Duration

	BulkDelay time.Duration

	PermissionCacheSize int
	PermissionCacheTTL  time.Duration

	// SeedFile points at an optional YAML file of groups and users to
	// create at startup. WatchSeed re-applies it on change.
	SeedFile  string
	WatchSeed bool
}

// Load reads configuration from the environment, falling back to
// defaults suitable for local development.
func Load() *Config {
	return &Config{
		HTTPAddr:              getEnv("AEGIS_HTTP_ADDR", ":8080"),
		LogLevel:              getEnv("AEGIS_LOG_LEVEL", "info"),
		SessionBackend:        getEnv("AEGIS_SESSION_BACKEND", BackendMemory),
		RedisAddr:             getEnv("AEGIS_REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("AEGIS_REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("AEGIS_REDIS_DB", 0),
		ActivityBackend:       getEnv("AEGIS_ACTIVITY_BACKEND", BackendMemory),
		SQLitePath:            getEnv("AEGIS_SQLITE_PATH", "aegis.db"),
		ActivityRetentionDays: getEnvInt("AEGIS_ACTIVITY_RETENTION_DAYS", 90),
		SessionTTL:            getEnvDuration("AEGIS_SESSION_TTL", 4*time.Hour),
		SessionSweepSchedule:  getEnv("AEGIS_SESSION_SWEEP_SCHEDULE", "@every 5m"),
		SecuritySweepSchedule: getEnv("AEGIS_SECURITY_SWEEP_SCHEDULE", "@every 5m"),
		CleanupSchedule:       getEnv("AEGIS_CLEANUP_SCHEDULE", "@daily"),
		LockoutThreshold:      getEnvInt("AEGIS_LOCKOUT_THRESHOLD", 5),
		LockoutWindow:         getEnvDuration("AEGIS_LOCKOUT_WINDOW", time.Hour),
		LockoutDuration:       getEnvDuration("AEGIS_LOCKOUT_DURATION", 30*time.Minute),
		BulkDelay:             getEnvDuration("AEGIS_BULK_DELAY", 25*time.Millisecond),
		PermissionCacheSize:   getEnvInt("AEGIS_PERMISSION_CACHE_SIZE", 4096),
		PermissionCacheTTL:    getEnvDuration("AEGIS_PERMISSION_CACHE_TTL", 5*time.Minute),
		SeedFile:              getEnv("AEGIS_SEED_FILE", ""),
		WatchSeed:             getEnvBool("AEGIS_SEED_WATCH", false),
	}
}

// Validate checks the configuration for values that would misbehave at
// runtime.
func (c *Config) Validate() error {
	switch c.SessionBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("invalid session backend %q", c.SessionBackend)
	}
	switch c.ActivityBackend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("invalid activity backend %q", c.ActivityBackend)
	}
	if c.SessionBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis session backend requires AEGIS_REDIS_ADDR")
	}
	if c.ActivityBackend == BackendSQLite && c.SQLitePath == "" {
		return fmt.Errorf("sqlite activity backend requires AEGIS_SQLITE_PATH")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive, got %s", c.SessionTTL)
	}
	if c.LockoutThreshold <= 0 {
		return fmt.Errorf("lockout threshold must be positive, got %d", c.LockoutThreshold)
	}
	if c.LockoutWindow <= 0 {
		return fmt.Errorf("lockout window must be positive, got %s", c.LockoutWindow)
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("lockout duration must be positive, got %s", c.LockoutDuration)
	}
	if c.ActivityRetentionDays <= 0 {
		return fmt.Errorf("activity retention must be at least one day, got %d", c.ActivityRetentionDays)
	}
	if c.PermissionCacheSize <= 0 {
		return fmt.Errorf("permission cache size must be positive, got %d", c.PermissionCacheSize)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

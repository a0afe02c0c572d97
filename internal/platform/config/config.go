package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures the per-process settings for one sync daemon.
type Config struct {
	// Service is the consuming service this process runs as.
	Service string

	// OpsAddr serves health and metrics.
	OpsAddr string

	LogLevel string

	Redis RedisConfig

	// DatabaseURL enables the PostgreSQL profile store when set; empty
	// falls back to the in-memory store, which only suits development.
	DatabaseURL string

	// DedupMaxEntries bounds the in-memory seen-set.
	DedupMaxEntries int

	// ReconnectBackoff is the fixed pause between listener reconnect attempts.
	ReconnectBackoff time.Duration
}

// RedisConfig carries connection settings for the broker and audit store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
// Defaults suit local development and should be overridden in production.
func FromEnv() Config {
	return Config{
		Service:          envOr("EDUSYNC_SERVICE", "user_service"),
		OpsAddr:          envOr("EDUSYNC_OPS_ADDR", ":8081"),
		LogLevel:         envOr("EDUSYNC_LOG_LEVEL", "info"),
		DatabaseURL:      os.Getenv("EDUSYNC_DATABASE_URL"),
		DedupMaxEntries:  envInt("EDUSYNC_DEDUP_MAX", 10000),
		ReconnectBackoff: envDuration("EDUSYNC_RECONNECT_BACKOFF", 2*time.Second),
		Redis: RedisConfig{
			URL:          envOr("EDUSYNC_REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     envInt("EDUSYNC_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("EDUSYNC_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("EDUSYNC_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("EDUSYNC_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("EDUSYNC_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
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

func envDuration(key string, fallback time.Duration) time.Duration {
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

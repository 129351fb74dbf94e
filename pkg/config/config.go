// Package config loads server configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string

	// RedisAddr enables the hot cache and the audit fan-out channel.
	// Empty means an in-memory cache and no fan-out.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// CacheTTL bounds hot-cache entries. The cache is advisory; the
	// durable store remains authoritative.
	CacheTTL time.Duration

	// AuditChannel is the pub/sub channel audit events are fanned out on.
	AuditChannel string

	// ErrorWindow is the rolling window for the audit stats recent-error
	// count.
	ErrorWindow time.Duration

	// GovernorRulesFile optionally points at a YAML rule file. Empty means
	// the built-in default rule set.
	GovernorRulesFile string

	// RateLimitRPS / RateLimitBurst bound per-IP request rates on the API.
	RateLimitRPS   int
	RateLimitBurst int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:              getenv("PORT", "8080"),
		LogLevel:          getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:       getenv("DATABASE_URL", "file:nrcore.db?_pragma=busy_timeout(5000)"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getint("REDIS_DB", 0),
		CacheTTL:          getduration("CACHE_TTL", 24*time.Hour),
		AuditChannel:      getenv("AUDIT_CHANNEL", "nrcore.audit"),
		ErrorWindow:       getduration("ERROR_WINDOW", time.Hour),
		GovernorRulesFile: os.Getenv("GOVERNOR_RULES_FILE"),
		RateLimitRPS:      getint("RATE_LIMIT_RPS", 50),
		RateLimitBurst:    getint("RATE_LIMIT_BURST", 100),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

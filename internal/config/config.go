// Package config provides environment-driven configuration for ledgerd.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds all application configuration values.
type Config struct {
	DatabaseURL Secret
	DBMaxConns  int
	Port        string
	ListenHost  string
	MetricsPort string
	CORSOrigins []string
	LogLevel    string

	// RedisURL enables the integrity status cache when set.
	RedisURL          Secret
	IntegrityCacheTTL time.Duration

	AnchorInterval time.Duration
	AnchorSettle   time.Duration
	VerifyPageSize int

	RateLimitRPS   int
	RateLimitBurst int
	MaxBodyBytes   int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: Secret(envOrDefault("DATABASE_URL", "")),
		Port:        envOrDefault("PORT", "3040"),
		ListenHost:  envOrDefault("LISTEN_HOST", "127.0.0.1"),
		MetricsPort: envOrDefault("METRICS_PORT", "9092"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		RedisURL:    Secret(envOrDefault("REDIS_URL", "")),
	}

	var err error

	if cfg.DBMaxConns, err = envInt("DB_MAX_CONNS", 20); err != nil {
		return nil, err
	}

	if cfg.VerifyPageSize, err = envInt("VERIFY_PAGE_SIZE", 500); err != nil {
		return nil, err
	}

	if cfg.RateLimitRPS, err = envInt("RATE_LIMIT_RPS", 50); err != nil {
		return nil, err
	}

	if cfg.RateLimitBurst, err = envInt("RATE_LIMIT_BURST", 100); err != nil {
		return nil, err
	}

	maxBody, err := envInt("MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if cfg.IntegrityCacheTTL, err = envDuration("INTEGRITY_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}

	if cfg.AnchorInterval, err = envDuration("ANCHOR_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.AnchorSettle, err = envDuration("ANCHOR_SETTLE", 30*time.Second); err != nil {
		return nil, err
	}

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:3002")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// MetricsAddr returns the metrics listen address in host:port format.
func (c *Config) MetricsAddr() string {
	return c.ListenHost + ":" + c.MetricsPort
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}

	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 30s or 5m: %w", key, err)
	}

	return d, nil
}

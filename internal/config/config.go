package config

import (
	"os"
	"time"
)

// Config holds the service-level knobs read from the environment. Database
// settings live in pkg/db and are loaded separately.
type Config struct {
	HTTPAddr string

	RedisAddr      string
	RedisPassword  string
	CouponCacheTTL time.Duration

	// Cron spec for the used_count reconciler; empty disables it.
	ReconcileSchedule string

	LogLevel string
}

func Load() Config {
	cfg := Config{
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		CouponCacheTTL:    getDuration("COUPON_CACHE_TTL", 30*time.Second),
		ReconcileSchedule: getenv("RECONCILE_SCHEDULE", "@every 10m"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
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

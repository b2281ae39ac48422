package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL   string
	ServerAddr    string
	LockTTL       time.Duration
	SweepInterval time.Duration
	SweepLimit    int
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "taskboard")
		pass := getenv("POSTGRES_PASSWORD", "taskboard_pass")
		db := getenv("POSTGRES_DB", "taskboard")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}
	addr := getenv("SERVER_ADDR", "0.0.0.0:8080")
	ttl := parseDuration(getenv("LOCK_TTL", "2m"), 2*time.Minute)
	interval := parseDuration(getenv("LOCK_SWEEP_INTERVAL", "30s"), 30*time.Second)
	limit := parseInt(getenv("LOCK_SWEEP_LIMIT", "100"), 100)

	return &Config{
		DatabaseURL:   dsn,
		ServerAddr:    addr,
		LockTTL:       ttl,
		SweepInterval: interval,
		SweepLimit:    limit,
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

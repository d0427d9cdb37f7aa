package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	ListenAddr string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// APIKeyHeader is the request header carrying the raw API key secret.
	APIKeyHeader string

	// KeyCacheTTL bounds how stale a cached API key record may be before
	// the registry is consulted again.
	KeyCacheTTL time.Duration

	// ResultCacheTTL is how long a validation result for a given national
	// ID is served from cache.
	ResultCacheTTL time.Duration

	// RetentionDays is how long call log rows are kept before the
	// retention worker deletes (and optionally archives) them.
	RetentionDays int

	// IPRateLimit is the per-client-IP request ceiling per IPRateWindow,
	// enforced in front of the per-key limiter.
	IPRateLimit  int
	IPRateWindow time.Duration

	AdminUser     string
	AdminPassword string

	// DefaultAPIKey, when set, is created at startup as a registry-backed
	// key so a fresh deployment is immediately usable.
	DefaultAPIKey string

	// LogArchiveBucket enables S3 archival of expired call logs when
	// non-empty.
	LogArchiveBucket string
	AWSRegion        string
	AWSEndpoint      string
	AWSAccessKey     string
	AWSSecretKey     string

	LogLevel string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	return &Config{
		ListenAddr:       getenv("APP_LISTEN_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("APP_DATABASE_URL"),
		RedisAddr:        getenv("APP_REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("APP_REDIS_PASSWORD"),
		RedisDB:          getenvInt("APP_REDIS_DB", 0),
		APIKeyHeader:     getenv("APP_API_KEY_HEADER", "X-API-Key"),
		KeyCacheTTL:      getenvDuration("APP_KEY_CACHE_TTL", 5*time.Minute),
		ResultCacheTTL:   getenvDuration("APP_RESULT_CACHE_TTL", time.Hour),
		RetentionDays:    getenvInt("APP_RETENTION_DAYS", 90),
		IPRateLimit:      getenvInt("APP_IP_RATE_LIMIT", 100),
		IPRateWindow:     getenvDuration("APP_IP_RATE_WINDOW", time.Minute),
		AdminUser:        getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:    getenv("APP_ADMIN_PASSWORD", "changeme"),
		DefaultAPIKey:    os.Getenv("APP_DEFAULT_API_KEY"),
		LogArchiveBucket: os.Getenv("APP_LOG_ARCHIVE_BUCKET"),
		AWSRegion:        getenv("AWS_REGION", "us-east-1"),
		AWSEndpoint:      os.Getenv("AWS_ENDPOINT"),
		AWSAccessKey:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:     os.Getenv("AWS_SECRET_ACCESS_KEY"),
		LogLevel:         getenv("APP_LOG_LEVEL", "info"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return def
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "X-API-Key", cfg.APIKeyHeader)
	assert.Equal(t, 5*time.Minute, cfg.KeyCacheTTL)
	assert.Equal(t, time.Hour, cfg.ResultCacheTTL)
	assert.Equal(t, 90, cfg.RetentionDays)
	assert.Equal(t, 100, cfg.IPRateLimit)
	assert.Equal(t, time.Minute, cfg.IPRateWindow)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", ":9090")
	t.Setenv("APP_DATABASE_URL", "postgres://gate:secret@db:5432/idgate")
	t.Setenv("APP_KEY_CACHE_TTL", "30s")
	t.Setenv("APP_RETENTION_DAYS", "14")
	t.Setenv("APP_IP_RATE_LIMIT", "10")
	t.Setenv("APP_LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "postgres://gate:secret@db:5432/idgate", cfg.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.KeyCacheTTL)
	assert.Equal(t, 14, cfg.RetentionDays)
	assert.Equal(t, 10, cfg.IPRateLimit)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("APP_RETENTION_DAYS", "not-a-number")
	t.Setenv("APP_KEY_CACHE_TTL", "soon")
	t.Setenv("APP_IP_RATE_WINDOW", "-1m")

	cfg := Load()

	assert.Equal(t, 90, cfg.RetentionDays)
	assert.Equal(t, 5*time.Minute, cfg.KeyCacheTTL)
	assert.Equal(t, time.Minute, cfg.IPRateWindow)
}

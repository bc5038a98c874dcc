package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTOSAVE_INTERVAL_MS", "")
	t.Setenv("RATE_LIMIT_MAX", "")
	t.Setenv("SESSION_TIMEOUT_SECONDS", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "")

	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.AutosaveInterval)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Zero(t, cfg.SessionTimeout)
	assert.Equal(t, 20, cfg.DBMaxOpenConns)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTOSAVE_INTERVAL_MS", "250")
	t.Setenv("RATE_LIMIT_MAX", "not-a-number")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("S3_USE_SSL", "false")

	cfg := Load()

	assert.Equal(t, 250*time.Millisecond, cfg.AutosaveInterval)
	assert.Equal(t, 100, cfg.RateLimitMax, "invalid ints fall back")
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.False(t, cfg.S3UseSSL)
}

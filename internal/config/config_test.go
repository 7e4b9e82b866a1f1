package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "DATABASE_DRIVER", "DATABASE_URL", "NATS_URL", "JWT_SECRET",
		"CONTROLLER_ADDRESS", "BOOTSTRAPPING_PERIOD", "EPOCH_INTERVAL", "LOG_LEVEL",
		"RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW", "REDIS_URL", "IDEMPOTENCY_TTL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	t.Run("should use defaults", func(t *testing.T) {
		clearEnv(t)
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8008", cfg.Port)
		assert.Equal(t, "postgres", cfg.DatabaseDriver)
		assert.Equal(t, uint64(90), cfg.BootstrappingPeriod)
		assert.Equal(t, time.Duration(0), cfg.EpochInterval)
		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
		assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
		assert.Empty(t, cfg.RedisURL)
	})

	t.Run("should read the environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "9000")
		t.Setenv("DATABASE_DRIVER", "sqlite3")
		t.Setenv("BOOTSTRAPPING_PERIOD", "10")
		t.Setenv("EPOCH_INTERVAL", "8h")
		t.Setenv("LOG_LEVEL", "DEBUG")
		t.Setenv("RATE_LIMIT_MAX", "20")
		t.Setenv("REDIS_URL", "redis://localhost:6379/0")
		t.Setenv("IDEMPOTENCY_TTL", "1h")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "9000", cfg.Port)
		assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
		assert.Equal(t, uint64(10), cfg.BootstrappingPeriod)
		assert.Equal(t, 8*time.Hour, cfg.EpochInterval)
		assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
		assert.Equal(t, 20, cfg.RateLimitMax)
		assert.Equal(t, time.Minute, cfg.RateLimitWindow)
		assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
		assert.Equal(t, time.Hour, cfg.IdempotencyTTL)
	})

	t.Run("should load a dotenv file without overriding the environment", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nPORT=7000\n"), 0o600))
		t.Setenv("PORT", "9000")

		cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.JWTSecret)
		assert.Equal(t, "9000", cfg.Port)
		os.Unsetenv("JWT_SECRET")
	})

	t.Run("should reject malformed numbers", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BOOTSTRAPPING_PERIOD", "-1")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("should accept a complete config", func(t *testing.T) {
		cfg := Default()
		cfg.JWTSecret = "secret"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("should report every problem", func(t *testing.T) {
		cfg := Default()
		cfg.DatabaseDriver = "mysql"
		cfg.EpochInterval = -time.Second

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported DATABASE_DRIVER")
		assert.Contains(t, err.Error(), "JWT_SECRET is required")
		assert.Contains(t, err.Error(), "EPOCH_INTERVAL")
	})
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/terminal-bench/comptroller/internal/epoch"
)

// Config holds all service configuration
type Config struct {
	Port                string
	DatabaseDriver      string
	DatabaseURL         string
	NATSURL             string
	RedisURL            string
	IdempotencyTTL      time.Duration
	JWTSecret           string
	ControllerAddress   string
	BootstrappingPeriod uint64
	EpochInterval       time.Duration
	RateLimitMax        int
	RateLimitWindow     time.Duration
	LogLevel            slog.Level
}

// Default returns production defaults
func Default() Config {
	return Config{
		Port:                "8008",
		DatabaseDriver:      "postgres",
		DatabaseURL:         "postgres://localhost:5432/comptroller?sslmode=disable",
		ControllerAddress:   "comptroller",
		BootstrappingPeriod: epoch.DefaultBootstrappingPeriod,
		RateLimitWindow:     time.Minute,
		IdempotencyTTL:      24 * time.Hour,
		LogLevel:            slog.LevelInfo,
	}
}

// Load reads configuration from the environment. Files named in envFiles
// are loaded first when they exist; variables already set win.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	cfg.Port = getenv("PORT", cfg.Port)
	cfg.DatabaseDriver = getenv("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.ControllerAddress = getenv("CONTROLLER_ADDRESS", cfg.ControllerAddress)

	if v := os.Getenv("BOOTSTRAPPING_PERIOD"); v != "" {
		period, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BOOTSTRAPPING_PERIOD %q: %w", v, err)
		}
		cfg.BootstrappingPeriod = period
	}

	if v := os.Getenv("EPOCH_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EPOCH_INTERVAL %q: %w", v, err)
		}
		cfg.EpochInterval = interval
	}

	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_MAX %q: %w", v, err)
		}
		cfg.RateLimitMax = limit
	}

	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		window, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_WINDOW %q: %w", v, err)
		}
		cfg.RateLimitWindow = window
	}

	if v := os.Getenv("IDEMPOTENCY_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid IDEMPOTENCY_TTL %q: %w", v, err)
		}
		cfg.IdempotencyTTL = ttl
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToLower(v))); err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
		}
	}

	return cfg, nil
}

// Validate checks the settings needed to serve traffic
func (c Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.ControllerAddress == "" {
		errs = append(errs, errors.New("CONTROLLER_ADDRESS must not be empty"))
	}
	if c.EpochInterval < 0 {
		errs = append(errs, errors.New("EPOCH_INTERVAL must not be negative"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	if c.RateLimitMax < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must not be negative"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// SweepInterval is the period of the expiry sweeper.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" default:"60s"`
	// ExpiredRetention is how long an expired session is kept as a tombstone
	// before the sweeper hard-deletes it.
	ExpiredRetention time.Duration `env:"EXPIRED_RETENTION" default:"24h"`

	DirectoryCacheTTL time.Duration `env:"DIRECTORY_CACHE_TTL" default:"5m"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.SweepInterval < time.Second {
		return fmt.Errorf("SWEEP_INTERVAL must be at least 1s, got %s", cfg.SweepInterval)
	}
	if cfg.ExpiredRetention < 0 {
		return fmt.Errorf("EXPIRED_RETENTION must not be negative, got %s", cfg.ExpiredRetention)
	}

	return nil
}

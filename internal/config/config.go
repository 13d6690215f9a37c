package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/punchamoorthee/protocol6713/internal/logging"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

type Config struct {
	DBDriver        string        `env:"DB_DRIVER"        envDefault:"postgres"`
	DBSource        string        `env:"DB_SOURCE,required,notEmpty"`
	Port            string        `env:"SERVER_PORT"      envDefault:"8080"`
	Env             string        `env:"ENVIRONMENT"      envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL"   envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	WebhookSecret   string        `env:"WEBHOOK_SECRET"`
}

// Load reads an optional .env file from the working directory, then the
// process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case store.DriverPostgres, store.DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", store.DriverPostgres, store.DriverSQLite, c.DBDriver)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.IsProduction() && c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

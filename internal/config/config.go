// Package config loads service configuration from environment variables,
// with optional .env loading for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the lottery service.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// ResponseWindow is how long a selected entrant has to respond.
	ResponseWindow time.Duration `env:"RESPONSE_WINDOW" envDefault:"48h"`
	// LockWait bounds per-event lock acquisition.
	LockWait time.Duration `env:"LOCK_WAIT" envDefault:"2s"`
	// SweepInterval is the cadence of the overdue-selection sweep.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`

	Database Database
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"eventlottery"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

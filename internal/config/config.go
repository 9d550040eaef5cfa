// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/monocle-dev/oncall/internal/types"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

type Config struct {
	Port           string `env:"PORT"            envDefault:"3000"`
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	JWTSecret      string `env:"JWT_SECRET"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
	ClientURL      string `env:"CLIENT_URL"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	AckTokenMode        string        `env:"ACK_TOKEN_MODE"        envDefault:"bound"`
	AckTokenTTL         time.Duration `env:"ACK_TOKEN_TTL"         envDefault:"24h"`
	TransitionPolicy    string        `env:"TRANSITION_POLICY"     envDefault:"strict"`
	RotationHorizonDays int           `env:"ROTATION_HORIZON_DAYS" envDefault:"90"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// FromMap parses cfg from the given variables only.
func FromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverMySQL:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for driver %q", types.ErrInvalidInput, c.DatabaseDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown DATABASE_DRIVER %q", types.ErrInvalidInput, c.DatabaseDriver)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET is not set", types.ErrInvalidInput)
	}
	if c.RotationHorizonDays <= 0 {
		return fmt.Errorf("%w: ROTATION_HORIZON_DAYS must be positive", types.ErrInvalidInput)
	}
	if c.AckTokenTTL <= 0 {
		return fmt.Errorf("%w: ACK_TOKEN_TTL must be positive", types.ErrInvalidInput)
	}
	return nil
}

// Origins returns the browser origins allowed for CORS and websockets.
func (c Config) Origins() []string {
	return types.AllowedOrigins(c.ClientURL, c.AllowedOrigins)
}

// Package config loads service configuration from the environment. A .env
// file in the working directory is read first when present; real
// environment variables take precedence over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrInvalid is returned when a setting parses but is not usable.
var ErrInvalid = errors.New("config: invalid setting")

// Store engines, in selection order.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config is the process configuration.
type Config struct {
	Port     string `env:"PORT"      envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// DatabaseURL selects PostgreSQL; RedisURL then adds a read-through
	// cache in front of it.
	DatabaseURL string        `env:"DATABASE_URL"`
	RedisURL    string        `env:"REDIS_URL"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"30s"`

	// SQLitePath selects the embedded store when no DatabaseURL is set.
	SQLitePath string `env:"SQLITE_PATH"`

	RateDebounce      time.Duration `env:"RATE_DEBOUNCE"       envDefault:"3s"`
	DemoResetSchedule string        `env:"DEMO_RESET_SCHEDULE"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT"    envDefault:"5s"`
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv parses the environment without touching .env.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, ok := levels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalid, c.LogLevel)
	}
	if c.RateDebounce <= 0 {
		return fmt.Errorf("%w: RATE_DEBOUNCE must be positive", ErrInvalid)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: SHUTDOWN_TIMEOUT must be positive", ErrInvalid)
	}
	if c.RedisURL != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("%w: CACHE_TTL must be positive", ErrInvalid)
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level returns LogLevel as a slog level.
func (c Config) Level() slog.Level {
	return levels[strings.ToLower(c.LogLevel)]
}

// StoreKind reports which store engine the settings select.
func (c Config) StoreKind() string {
	switch {
	case c.DatabaseURL != "":
		return StorePostgres
	case c.SQLitePath != "":
		return StoreSQLite
	}
	return StoreMemory
}

// Package config loads the example server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/manenim/gcra-limiter/pkg/limiter"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrParsingConfig = errors.New("failed to parse config")
)

// Backend names accepted in LIMITER_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Addr          string        `env:"ADDR" envDefault:":8080"`                         // Addr is the HTTP listen address.
	Backend       string        `env:"LIMITER_BACKEND" envDefault:"memory"`             // Backend is either "memory" or "redis".
	RedisURL      string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"` // RedisURL is used by the redis backend.
	Prefix        string        `env:"LIMITER_PREFIX" envDefault:"limiter:"`            // Prefix namespaces the Redis keys.
	Rate          int64         `env:"LIMIT_RATE" envDefault:"5"`                       // Rate is the number of requests replenished per Period.
	Period        time.Duration `env:"LIMIT_PERIOD" envDefault:"1s"`                    // Period is the window Rate is measured over.
	Burst         int64         `env:"LIMIT_BURST" envDefault:"10"`                     // Burst is the number of requests admitted back to back.
	Timeout       time.Duration `env:"LIMITER_TIMEOUT" envDefault:"100ms"`              // Timeout bounds each decision.
	FailOpen      bool          `env:"LIMITER_FAIL_OPEN" envDefault:"false"`            // FailOpen lets requests through when the limiter errors.
	SweepInterval time.Duration `env:"LIMITER_SWEEP_INTERVAL" envDefault:"1m"`          // SweepInterval is how often the memory backend drops idle keys.
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`                     // LogLevel is a zerolog level name.
	LogFormat     string        `env:"LOG_FORMAT" envDefault:"json"`                    // LogFormat is "json" or "console".
}

// Load reads .env files, then the environment. Without arguments a missing
// ./.env is not an error; explicitly named files must exist.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Backend == BackendRedis && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
	}
	if _, err := c.Limit().Quota(); err != nil {
		errs = append(errs, err)
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("negative timeout %v", c.Timeout))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval must be positive, got %v", c.SweepInterval))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Limit is the configured policy applied to every client.
func (c Config) Limit() limiter.Limit {
	return limiter.Limit{Rate: c.Rate, Period: c.Period, Burst: c.Burst}
}

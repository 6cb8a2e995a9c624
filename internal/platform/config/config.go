package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the service configuration, read from the environment.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	AudioCapacity int  `env:"POOL_AUDIO_CAPACITY" envDefault:"2"`
	VideoCapacity int  `env:"POOL_VIDEO_CAPACITY" envDefault:"4"`
	AutoReady     bool `env:"POOL_AUTO_READY" envDefault:"true"`

	RateEnabled bool    `env:"RATE_ENABLED" envDefault:"true"`
	RateRPS     float64 `env:"RATE_RPS" envDefault:"20"`
	RateBurst   int     `env:"RATE_BURST" envDefault:"40"`

	StatsBackend       string        `env:"STATS_BACKEND" envDefault:"memory"`
	StatsRedisAddr     string        `env:"STATS_REDIS_ADDR"`
	StatsRedisPassword string        `env:"STATS_REDIS_PASSWORD"`
	StatsRedisDB       int           `env:"STATS_REDIS_DB" envDefault:"0"`
	StatsPrefix        string        `env:"STATS_PREFIX" envDefault:"mediapool:stats"`
	StatsTTL           time.Duration `env:"STATS_TTL" envDefault:"24h"`
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Parse builds a Config from the environment and validates it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c Config) Validate() error {
	if c.AudioCapacity < 0 || c.VideoCapacity < 0 {
		return errors.New("POOL_AUDIO_CAPACITY and POOL_VIDEO_CAPACITY must be >= 0")
	}
	if c.RateEnabled && (c.RateRPS <= 0 || c.RateBurst <= 0) {
		return errors.New("RATE_RPS and RATE_BURST must be > 0 when RATE_ENABLED=true")
	}
	switch strings.ToLower(c.StatsBackend) {
	case "memory", "none":
	case "redis":
		if strings.TrimSpace(c.StatsRedisAddr) == "" {
			return errors.New("STATS_REDIS_ADDR is required when STATS_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown STATS_BACKEND %q", c.StatsBackend)
	}
	return nil
}

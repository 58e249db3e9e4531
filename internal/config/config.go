package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	// Server
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage
	Store       string `env:"STORE" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Redis, empty runs the in-process locker, ledger and bus
	RedisURL string `env:"REDIS_URL"`

	// JWT
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"your-secret-key"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"24h"`

	// Adapter credentials, "adapterId:bcryptHash" pairs
	AdapterKeys map[string]string `env:"ADAPTER_KEYS" envSeparator:"," envKeyValSeparator:":"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:5173" envSeparator:","`

	// Rate limiting per adapter token
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"120"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	Matchmaking Matchmaking
}

// Matchmaking tunables handed to the service engine.
type Matchmaking struct {
	DeclineExclusion    time.Duration `env:"EXCLUSION_DECLINE_TTL" envDefault:"45m"`
	TierSearchReach     int           `env:"TIER_SEARCH_REACH" envDefault:"1"`
	RankedDailySetLimit int           `env:"RANKED_DAILY_SET_LIMIT" envDefault:"2"`
	MatchRetryAttempts  int           `env:"MATCH_RETRY_ATTEMPTS" envDefault:"3"`
	MatchLockTTL        time.Duration `env:"MATCH_LOCK_TTL" envDefault:"5s"`
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.RateLimit < 1 || c.RateLimitWindow <= 0 {
		return errors.New("RATE_LIMIT and RATE_LIMIT_WINDOW must be positive")
	}
	m := c.Matchmaking
	if m.TierSearchReach < 0 {
		return errors.New("TIER_SEARCH_REACH must not be negative")
	}
	if m.RankedDailySetLimit < 1 {
		return errors.New("RANKED_DAILY_SET_LIMIT must be at least 1")
	}
	if m.MatchRetryAttempts < 1 {
		return errors.New("MATCH_RETRY_ATTEMPTS must be at least 1")
	}
	if m.DeclineExclusion <= 0 || m.MatchLockTTL <= 0 {
		return errors.New("matchmaking durations must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Event store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreSupabase = "supabase"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Actors
	IdleTimeout          time.Duration `env:"ACCOUNT_IDLE_TIMEOUT" envDefault:"2m"`
	FlushInterval        time.Duration `env:"FLUSH_INTERVAL" envDefault:"5s"`
	FlushOnEvict         bool          `env:"FLUSH_ON_EVICT" envDefault:"true"`
	MaxConcurrentFlushes int           `env:"MAX_CONCURRENT_FLUSHES" envDefault:"8"`

	// Event store
	EventStore  string `env:"EVENT_STORE" envDefault:"memory"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"accounts.db"`
	DatabaseURL string `env:"DATABASE_URL"`
	PGMaxConns  int32  `env:"PG_MAX_CONNS" envDefault:"10"`

	// Supabase
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`

	// HTTP client
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// Resilience
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"100ms"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF" envDefault:"2s"`

	// Cache
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"30s"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads configuration from environment variables with defaults and
// checks that the selected event store is fully configured.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch c.EventStore {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when EVENT_STORE=%s", StoreSQLite)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when EVENT_STORE=%s", StorePostgres)
		}
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL, SUPABASE_ANON_KEY and SUPABASE_SERVICE_ROLE_KEY are required when EVENT_STORE=%s", StoreSupabase)
		}
	default:
		return fmt.Errorf("unsupported EVENT_STORE %q", c.EventStore)
	}

	if c.IdleTimeout <= 0 {
		return fmt.Errorf("ACCOUNT_IDLE_TIMEOUT must be positive, got %s", c.IdleTimeout)
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("FLUSH_INTERVAL must not be negative, got %s", c.FlushInterval)
	}
	return nil
}

// Package config loads process configuration from the environment.
// A .env file in the working directory is honoured when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Postgres PostgresConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	AppEnv         string
	Port           string
	RateLimit      string // ulule/limiter formatted rate, e.g. "100-M"
	TrustedProxies []string
}

type LoggerConfig struct {
	Level string
}

type PostgresConfig struct {
	DSN              string
	MaxConns         int
	MinConns         int
	StatementTimeout time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	EventsChannel string
}

type LedgerConfig struct {
	NearExpirationHorizon time.Duration
	AlertThrottle         time.Duration
}

type WorkerConfig struct {
	OutboxPollInterval       time.Duration
	OutboxBatchSize          int
	ReservationSweepInterval time.Duration
	ReservationSweepBatch    int
}

// IsDevelopment reports whether the process runs with developer defaults.
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development"
}

// Load reads the environment (after an optional .env) and validates required keys.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			AppEnv:         getEnv("APP_ENV", "development"),
			Port:           getEnv("HTTP_PORT", "8080"),
			RateLimit:      getEnv("RATE_LIMIT", "300-M"),
			TrustedProxies: getEnvSlice("TRUSTED_PROXIES", nil),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Postgres: PostgresConfig{
			DSN:              getEnv("DATABASE_URL", ""),
			MaxConns:         getEnvInt("DB_MAX_CONNS", 25),
			MinConns:         getEnvInt("DB_MIN_CONNS", 5),
			StatementTimeout: getEnvDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", "foodledger"),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			EventsChannel: getEnv("EVENTS_CHANNEL", "inventory.events"),
		},
		Ledger: LedgerConfig{
			NearExpirationHorizon: time.Duration(getEnvInt("ALERT_HORIZON_DAYS", 7)) * 24 * time.Hour,
			AlertThrottle:         getEnvDuration("ALERT_THROTTLE", 24*time.Hour),
		},
		Worker: WorkerConfig{
			OutboxPollInterval:       getEnvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			OutboxBatchSize:          getEnvInt("OUTBOX_BATCH_SIZE", 100),
			ReservationSweepInterval: getEnvDuration("RESERVATION_SWEEP_INTERVAL", time.Minute),
			ReservationSweepBatch:    getEnvInt("RESERVATION_SWEEP_BATCH", 50),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Postgres.DSN == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

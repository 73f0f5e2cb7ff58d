package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// KV backends accepted by KVBackend.
const (
	KVBackendSQLite = "sqlite"
	KVBackendRedis  = "redis"
)

// Config holds application settings.
type Config struct {
	// ESI transport
	ESIBaseURL     string        `env:"ESI_BASE_URL" envDefault:"https://esi.evetech.net/latest"`
	UserAgent      string        `env:"ESI_USER_AGENT" envDefault:"eve-dealfinder/1.0 (github.com)"`
	HTTPTimeout    time.Duration `env:"ESI_HTTP_TIMEOUT" envDefault:"30s"`
	ESIConnections int           `env:"ESI_CONNECTIONS" envDefault:"50"`

	// Character being analysed
	CharacterID int64  `env:"ESI_CHARACTER_ID"`
	AccessToken string `env:"ESI_ACCESS_TOKEN"` // empty = use the stored session

	// Persistence
	DBPath        string `env:"DEALS_DB_PATH" envDefault:"dealfinder.db"`
	KVBackend     string `env:"DEALS_KV_BACKEND" envDefault:"sqlite"` // sqlite | redis
	RedisAddr     string `env:"DEALS_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"DEALS_REDIS_PASSWORD"`
	RedisDB       int    `env:"DEALS_REDIS_DB" envDefault:"0"`

	// Discovery
	Concurrency      int           `env:"DEALS_CONCURRENCY" envDefault:"16"`
	MaxRetries       int           `env:"DEALS_MAX_RETRIES" envDefault:"4"`
	HistoryTTL       time.Duration `env:"DEALS_HISTORY_TTL" envDefault:"120h"`
	OrderHorizonDays float64       `env:"DEALS_ORDER_HORIZON_DAYS" envDefault:"1"`

	// Service
	Port        int    `env:"DEALS_PORT" envDefault:"13371"`
	MetricsAddr string `env:"DEALS_METRICS_ADDR"` // empty = metrics server disabled
	LogLevel    string `env:"DEALS_LOG_LEVEL" envDefault:"info"`

	// Scheduled discovery while serving
	Schedule         string `env:"DEALS_SCHEDULE"` // cron spec, e.g. "@every 30m"; empty = off
	RunRetentionDays int    `env:"DEALS_RUN_RETENTION_DAYS" envDefault:"30"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		ESIBaseURL:       "https://esi.evetech.net/latest",
		UserAgent:        "eve-dealfinder/1.0 (github.com)",
		HTTPTimeout:      30 * time.Second,
		ESIConnections:   50,
		DBPath:           "dealfinder.db",
		KVBackend:        KVBackendSQLite,
		RedisAddr:        "127.0.0.1:6379",
		Concurrency:      16,
		MaxRetries:       4,
		HistoryTTL:       5 * 24 * time.Hour,
		OrderHorizonDays: 1,
		Port:             13371,
		LogLevel:         "info",
		RunRetentionDays: 30,
	}
}

// Load reads .env (if present) and the process environment on top of the defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("env.Parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the discovery run cannot work with.
func (c *Config) Validate() error {
	switch c.KVBackend {
	case KVBackendSQLite, KVBackendRedis:
	default:
		return fmt.Errorf("config: unknown kv backend %q", c.KVBackend)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("config: concurrency must be positive, got %d", c.Concurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.HistoryTTL <= 0 {
		return fmt.Errorf("config: history ttl must be positive, got %s", c.HistoryTTL)
	}
	if c.RunRetentionDays <= 0 {
		return fmt.Errorf("config: run retention must be positive, got %d", c.RunRetentionDays)
	}
	if c.OrderHorizonDays <= 0 {
		return fmt.Errorf("config: order horizon must be positive, got %v", c.OrderHorizonDays)
	}
	return nil
}

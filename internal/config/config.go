// Package config defines the top-level configuration for the trading
// simulator and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CORINEE_* environment
// variables.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Upbit      UpbitConfig      `toml:"upbit"`
	Engine     EngineConfig     `toml:"engine"`
	Dispatcher DispatcherConfig `toml:"dispatcher"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the fill
// history exporter.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// UpbitConfig holds the upstream exchange endpoints and subscribed markets.
type UpbitConfig struct {
	RestURL string `toml:"rest_url"`
	WsURL   string `toml:"ws_url"`
	// Markets is the list of market codes to track, e.g. ["KRW-BTC"].
	Markets []string `toml:"markets"`
	// OrderbookTTL bounds how long a cached snapshot may be reused.
	OrderbookTTL duration `toml:"orderbook_ttl"`
}

// EngineConfig holds matching engine parameters.
type EngineConfig struct {
	Enabled bool `toml:"enabled"`
	// Interval between matching cycles.
	Interval duration `toml:"interval"`
	// SettlementCurrency is the currency balances settle in.
	SettlementCurrency string `toml:"settlement_currency"`
	// Precision is the fixed-point fractional digit count every money and
	// quantity value is truncated to.
	Precision int `toml:"precision"`
	// Epsilon is the minimum fillable quantity; remainders below it are
	// dust and never persisted as pending.
	Epsilon string `toml:"epsilon"`
	// MinNotional is the minimum order size in settlement currency.
	MinNotional string `toml:"min_notional"`
	// SeedBalance is credited to new accounts in settlement currency.
	SeedBalance string `toml:"seed_balance"`
	// CycleLockTTL is the distributed lock TTL guarding one matching cycle
	// per side across replicas. Zero disables the lock.
	CycleLockTTL duration `toml:"cycle_lock_ttl"`
}

// DispatcherConfig holds worker pool parameters.
type DispatcherConfig struct {
	Workers int `toml:"workers"`
}

// duration wraps time.Duration with TOML string decoding ("5s", "2m").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "corinee",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "corinee-fills",
			ForcePathStyle: true,
		},
		Upbit: UpbitConfig{
			RestURL:      "https://api.upbit.com",
			WsURL:        "wss://api.upbit.com/websocket/v1",
			Markets:      []string{"KRW-BTC", "KRW-ETH", "BTC-ETH"},
			OrderbookTTL: duration{2 * time.Second},
		},
		Engine: EngineConfig{
			Enabled:            true,
			Interval:           duration{3 * time.Second},
			SettlementCurrency: "KRW",
			Precision:          8,
			Epsilon:            "0.00000001",
			MinNotional:        "5000",
			SeedBalance:        "10000000",
			CycleLockTTL:       duration{30 * time.Second},
		},
		Dispatcher: DispatcherConfig{
			Workers: 8,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   30,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"order_created", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"engine": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, engine, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	if c.Upbit.RestURL == "" {
		errs = append(errs, "upbit: rest_url must not be empty")
	}
	if len(c.Upbit.Markets) == 0 {
		errs = append(errs, "upbit: at least one market must be configured")
	}

	if c.Engine.Enabled {
		if c.Engine.Interval.Duration <= 0 {
			errs = append(errs, "engine: interval must be > 0")
		}
		if c.Engine.SettlementCurrency == "" {
			errs = append(errs, "engine: settlement_currency must not be empty")
		}
	}
	// Precision and epsilon feed the money rules used by every mode, so
	// they are checked regardless of engine.enabled.
	if c.Engine.Precision < 1 || c.Engine.Precision > 28 {
		errs = append(errs, fmt.Sprintf("engine: precision must be 1-28, got %d", c.Engine.Precision))
	}
	if eps, err := decimal.NewFromString(c.Engine.Epsilon); err != nil || !eps.IsPositive() {
		errs = append(errs, fmt.Sprintf("engine: epsilon must be a positive decimal, got %q", c.Engine.Epsilon))
	}

	if c.Dispatcher.Workers < 1 {
		errs = append(errs, "dispatcher: workers must be >= 1")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CORINEE_* environment variable overrides, and
// returns the final Config. The result has NOT been validated; call
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present, silently skipped when missing.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CORINEE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Database.DSN, "CORINEE_DATABASE_DSN")
	setStr(&cfg.Database.Host, "CORINEE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "CORINEE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "CORINEE_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "CORINEE_DATABASE_USER")
	setStr(&cfg.Database.Password, "CORINEE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "CORINEE_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "CORINEE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "CORINEE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "CORINEE_DATABASE_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "CORINEE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CORINEE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CORINEE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CORINEE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CORINEE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CORINEE_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "CORINEE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CORINEE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CORINEE_S3_REGION")
	setStr(&cfg.S3.Bucket, "CORINEE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CORINEE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CORINEE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CORINEE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CORINEE_S3_FORCE_PATH_STYLE")

	setStr(&cfg.Upbit.RestURL, "CORINEE_UPBIT_REST_URL")
	setStr(&cfg.Upbit.WsURL, "CORINEE_UPBIT_WS_URL")
	setStringSlice(&cfg.Upbit.Markets, "CORINEE_UPBIT_MARKETS")
	setDuration(&cfg.Upbit.OrderbookTTL, "CORINEE_UPBIT_ORDERBOOK_TTL")

	setBool(&cfg.Engine.Enabled, "CORINEE_ENGINE_ENABLED")
	setDuration(&cfg.Engine.Interval, "CORINEE_ENGINE_INTERVAL")
	setStr(&cfg.Engine.SettlementCurrency, "CORINEE_ENGINE_SETTLEMENT_CURRENCY")
	setInt(&cfg.Engine.Precision, "CORINEE_ENGINE_PRECISION")
	setStr(&cfg.Engine.Epsilon, "CORINEE_ENGINE_EPSILON")
	setStr(&cfg.Engine.MinNotional, "CORINEE_ENGINE_MIN_NOTIONAL")
	setStr(&cfg.Engine.SeedBalance, "CORINEE_ENGINE_SEED_BALANCE")
	setDuration(&cfg.Engine.CycleLockTTL, "CORINEE_ENGINE_CYCLE_LOCK_TTL")

	setInt(&cfg.Dispatcher.Workers, "CORINEE_DISPATCHER_WORKERS")

	setBool(&cfg.Server.Enabled, "CORINEE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CORINEE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CORINEE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CORINEE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CORINEE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CORINEE_SERVER_RATE_WINDOW")

	setStr(&cfg.Notify.TelegramToken, "CORINEE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CORINEE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CORINEE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CORINEE_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "CORINEE_MODE")
	setStr(&cfg.LogLevel, "CORINEE_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

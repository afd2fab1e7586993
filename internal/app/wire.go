package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3archive "github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/archive/s3"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/cache/redis"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/config"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/dispatcher"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/feed"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/money"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/notify"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/service"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	Tx       domain.TxManager
	Accounts domain.AccountStore
	Orders   domain.OrderStore
	Ledger   domain.BalanceLedger
	Fills    domain.FillStore

	// Caches
	PriceCache  domain.PriceCache
	BookCache   domain.OrderbookCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Market data
	Books   domain.SnapshotProvider
	Tickers domain.TickerSource

	// Money rules and parsed engine amounts
	Rules       money.Rules
	MinNotional decimal.Decimal
	SeedBalance decimal.Decimal

	// Services
	OrderService   *service.OrderService
	AccountService *service.AccountService

	// Worker pool for order persistence.
	Pool *dispatcher.Pool

	// Optional fill exporter, nil unless s3.enabled.
	Exporter *s3archive.Exporter

	Notifier *notify.Notifier

	// Raw clients kept for health checks.
	Postgres *postgres.Client
	Redis    *redis.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	epsilon, err := decimal.NewFromString(cfg.Engine.Epsilon)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: engine.epsilon: %w", err)
	}
	deps := &Dependencies{
		Rules: money.NewRules(int32(cfg.Engine.Precision), epsilon),
	}

	deps.MinNotional, err = deps.Rules.Parse(cfg.Engine.MinNotional)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: engine.min_notional: %w", err)
	}
	deps.SeedBalance, err = deps.Rules.Parse(cfg.Engine.SeedBalance)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: engine.seed_balance: %w", err)
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Postgres = pgClient
	deps.Tx = pgClient
	deps.Accounts = postgres.NewAccountStore(pool)
	deps.Orders = postgres.NewOrderStore(pool)
	deps.Ledger = postgres.NewLedgerStore(pool)
	deps.Fills = postgres.NewFillStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	priceCache := redis.NewPriceCache(redisClient)
	deps.PriceCache = priceCache
	deps.Tickers = priceCache
	deps.BookCache = redis.NewOrderbookCache(redisClient, cfg.Upbit.OrderbookTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Market data ---
	upbit := feed.NewUpbitClient(cfg.Upbit.RestURL)
	deps.Books = feed.NewCachedProvider(upbit, deps.BookCache, logger)

	// --- S3 fill exporter ---
	if cfg.S3.Enabled {
		s3Client, err := s3archive.New(ctx, s3archive.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Exporter = s3archive.NewExporter(s3Client, deps.Fills, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Dispatcher ---
	deps.Pool = dispatcher.New(cfg.Dispatcher.Workers, logger)
	closers = append(closers, deps.Pool.Close)

	// --- Services ---
	deps.OrderService = service.NewOrderService(
		service.Config{
			SettlementCurrency: cfg.Engine.SettlementCurrency,
			MinNotional:        deps.MinNotional,
		},
		deps.Rules,
		deps.Tx,
		deps.Accounts,
		deps.Orders,
		deps.Ledger,
		deps.Tickers,
		deps.SignalBus,
		deps.Notifier,
		deps.Pool,
		logger,
	)
	deps.AccountService = service.NewAccountService(
		deps.Tx,
		deps.Accounts,
		deps.Ledger,
		deps.Fills,
		cfg.Engine.SettlementCurrency,
		deps.SeedBalance,
		logger,
	)

	return deps, cleanup, nil
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/engine"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/feed"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/server"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/server/handler"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

// startTickerFeed subscribes to the exchange ticker stream and fans each
// tick into the price cache and the signal bus.
func (a *App) startTickerFeed(ctx context.Context, g *errgroup.Group) {
	onTicker := func(ctx context.Context, t domain.Ticker) {
		if err := a.deps.PriceCache.SetTicker(ctx, t); err != nil {
			a.logger.WarnContext(ctx, "ticker cache write failed",
				slog.String("market", t.Market),
				slog.String("error", err.Error()),
			)
		}

		payload, err := json.Marshal(domain.TickerEvent{
			Market:     t.Market,
			TradePrice: t.TradePrice.String(),
			Ts:         t.Ts,
		})
		if err != nil {
			return
		}
		if err := a.deps.SignalBus.Publish(ctx, domain.ChannelTickers, payload); err != nil {
			a.logger.WarnContext(ctx, "ticker publish failed",
				slog.String("market", t.Market),
				slog.String("error", err.Error()),
			)
		}
	}

	tickerFeed := feed.NewUpbitTickerFeed(a.cfg.Upbit.WsURL, a.cfg.Upbit.Markets, onTicker, a.logger)

	g.Go(func() error {
		defer tickerFeed.Close()
		err := tickerFeed.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}

// startServer runs the HTTP API, its websocket hub, and graceful shutdown.
func (a *App) startServer(ctx context.Context, g *errgroup.Group) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "server disabled by config")
		return
	}

	wsHub := ws.NewHub(a.deps.SignalBus, a.logger)

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": a.deps.Postgres,
			"redis":    a.deps.Redis,
		}),
		Orders:   handler.NewOrderHandler(a.deps.OrderService, a.logger),
		Accounts: handler.NewAccountHandler(a.deps.AccountService, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, wsHub, a.deps.RateLimiter, a.logger)

	g.Go(func() error {
		err := wsHub.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.logger.InfoContext(ctx, "http server listening", slog.Int("port", a.cfg.Server.Port))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startEngine runs the matching engine and, when configured, the daily fill
// exporter.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group) {
	if !a.cfg.Engine.Enabled {
		a.logger.InfoContext(ctx, "engine disabled by config")
		return
	}

	matcher := engine.New(
		engine.Config{
			Interval:           a.cfg.Engine.Interval.Duration,
			SettlementCurrency: a.cfg.Engine.SettlementCurrency,
			CycleLockTTL:       a.cfg.Engine.CycleLockTTL.Duration,
		},
		a.deps.Rules,
		a.deps.Tx,
		a.deps.Orders,
		a.deps.Ledger,
		a.deps.Fills,
		a.deps.Books,
		a.deps.Tickers,
		a.deps.SignalBus,
		a.deps.LockManager,
		a.logger,
	)

	g.Go(func() error {
		err := matcher.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if a.deps.Exporter != nil {
		g.Go(func() error {
			err := a.deps.Exporter.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
}

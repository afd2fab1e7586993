// Package app wires the application together and runs it in one of three
// modes: the API server, the matching engine, or both.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/config"
)

// App is the composed application. Construct with New, run with Run, and
// release resources with Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	deps    *Dependencies
	cleanup func()
}

// New wires all dependencies for the configured mode.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	deps, cleanup, err := Wire(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:     cfg,
		logger:  logger,
		deps:    deps,
		cleanup: cleanup,
	}, nil
}

// Run starts the components for the configured mode and blocks until ctx is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("settlement_currency", a.cfg.Engine.SettlementCurrency),
	)

	g, ctx := errgroup.WithContext(ctx)

	// All modes keep the price cache warm; the server needs it for limit
	// price conversion and the engine for the matching stop rule.
	a.startTickerFeed(ctx, g)

	switch a.cfg.Mode {
	case "server":
		a.startServer(ctx, g)
	case "engine":
		a.startEngine(ctx, g)
	case "full":
		a.startServer(ctx, g)
		a.startEngine(ctx, g)
	default:
		return fmt.Errorf("app: unknown mode %q", a.cfg.Mode)
	}

	return g.Wait()
}

// Close releases every resource acquired during wiring, in reverse order.
func (a *App) Close() {
	a.cleanup()
}

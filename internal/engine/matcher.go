// Package engine implements the matching engine: a periodic scheduler per
// order side and the per-order fill algorithm that advances pending orders
// against live orderbook snapshots.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/money"
)

// Config holds the matcher's tunables.
type Config struct {
	// Interval is the matching-cycle cadence per side.
	Interval time.Duration

	// SettlementCurrency is the currency all balances settle in.
	SettlementCurrency string

	// CycleLockTTL bounds how long a replica may hold the per-side cycle
	// lock. Only used when a LockManager is wired.
	CycleLockTTL time.Duration
}

// Matcher owns the two per-side matching loops and all state they share.
// Collaborators are injected once at construction; there are no ambient
// singletons.
type Matcher struct {
	cfg     Config
	rules   money.Rules
	orders  domain.OrderStore
	ledger  domain.BalanceLedger
	fills   domain.FillStore
	books   domain.SnapshotProvider
	tickers domain.TickerSource
	tx      domain.TxManager
	bus     domain.SignalBus   // optional; nil disables event publishing
	locks   domain.LockManager // optional; nil disables cross-replica exclusion
	guard   *inflightGuard
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a Matcher with the given collaborators. bus and locks may be
// nil.
func New(
	cfg Config,
	rules money.Rules,
	tx domain.TxManager,
	orders domain.OrderStore,
	ledger domain.BalanceLedger,
	fills domain.FillStore,
	books domain.SnapshotProvider,
	tickers domain.TickerSource,
	bus domain.SignalBus,
	locks domain.LockManager,
	logger *slog.Logger,
) *Matcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.SettlementCurrency == "" {
		cfg.SettlementCurrency = "KRW"
	}
	if cfg.CycleLockTTL <= 0 {
		cfg.CycleLockTTL = 30 * time.Second
	}
	return &Matcher{
		cfg:     cfg,
		rules:   rules,
		orders:  orders,
		ledger:  ledger,
		fills:   fills,
		books:   books,
		tickers: tickers,
		tx:      tx,
		bus:     bus,
		locks:   locks,
		guard:   newInflightGuard(),
		logger:  logger.With(slog.String("component", "matcher")),
	}
}

// Run starts one matching loop per side and blocks until ctx is cancelled.
// The loops never stop on their own; any error advancing one order is
// contained at the order boundary.
func (m *Matcher) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "matcher starting",
		slog.Duration("interval", m.cfg.Interval),
		slog.String("settlement_currency", m.cfg.SettlementCurrency),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.runSide(ctx, domain.OrderSideBuy) })
	g.Go(func() error { return m.runSide(ctx, domain.OrderSideSell) })

	err := g.Wait()
	// Let in-flight attempts finish before reporting shutdown.
	m.wg.Wait()
	return err
}

func (m *Matcher) runSide(ctx context.Context, side domain.OrderSide) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.cycle(ctx, side)
		}
	}
}

// cycle enumerates the pending orders for one side, launches an attempt for
// each order not already in flight, and waits for those attempts before
// returning. A failure on one order never aborts the cycle for the others.
func (m *Matcher) cycle(ctx context.Context, side domain.OrderSide) {
	if m.locks != nil {
		unlock, err := m.locks.Acquire(ctx, "match:"+string(side), m.cfg.CycleLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return // another replica is matching this side
			}
			m.logger.WarnContext(ctx, "cycle lock failed",
				slog.String("side", string(side)),
				slog.String("error", err.Error()),
			)
			return
		}
		defer unlock()
	}

	orders, err := m.orders.ListPending(ctx, side)
	if err != nil {
		m.logger.WarnContext(ctx, "list pending failed",
			slog.String("side", string(side)),
			slog.String("error", err.Error()),
		)
		return
	}

	var attempts sync.WaitGroup
	for _, o := range orders {
		if !m.guard.TryAcquire(o.ID) {
			continue // previous cycle's attempt still running
		}

		o := o
		m.wg.Add(1)
		attempts.Add(1)
		go func() {
			defer m.wg.Done()
			defer attempts.Done()
			defer m.guard.Release(o.ID)

			if err := m.attempt(ctx, o); err != nil {
				m.logger.WarnContext(ctx, "order attempt failed",
					slog.String("order_id", o.ID),
					slog.String("market", o.Market),
					slog.String("side", string(o.Side)),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	// The cycle lock must outlive every attempt launched under it, so the
	// cross-replica exclusion covers the fills, not just the listing.
	attempts.Wait()
}

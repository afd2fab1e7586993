package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// TxManager runs a function inside a single storage transaction. Store
// methods called with the ctx passed to fn participate in that transaction;
// the transaction commits when fn returns nil and rolls back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountStore persists accounts.
type AccountStore interface {
	Create(ctx context.Context, acct Account) error
	Get(ctx context.Context, id string) (Account, error)
}

// OrderStore persists pending orders. All mutations of an existing order go
// through LockAndLoad first so no two transactions advance the same order
// concurrently.
type OrderStore interface {
	InsertPending(ctx context.Context, o Order) error
	// LockAndLoad fetches the order under a row lock within the ambient
	// transaction. Returns ErrOrderVanished when the row no longer exists.
	LockAndLoad(ctx context.Context, id string) (Order, error)
	UpdateRemaining(ctx context.Context, id string, remaining decimal.Decimal) error
	Delete(ctx context.Context, id string) error
	ListPending(ctx context.Context, side OrderSide) ([]Order, error)
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]Order, error)
}

// BalanceLedger holds currency balances and per-asset holdings. Every
// mutation is a signed delta applied in SQL, never a read-modify-write, and
// every method is callable inside an ambient transaction supplied via ctx.
type BalanceLedger interface {
	GetBalance(ctx context.Context, accountID, currency string) (Balance, error)
	ListBalances(ctx context.Context, accountID string) ([]Balance, error)
	// CreateBalance opens a currency balance row for the account with the
	// given starting amounts. Opening an already-open balance is a no-op;
	// the adjust and reserve methods require the row to exist.
	CreateBalance(ctx context.Context, accountID, currency string, total, available decimal.Decimal) error
	// Reserve moves amount from available to reserved: a negative delta on
	// the available column only, since total already includes the funds.
	// Fails with ErrInsufficientFunds when available would go negative.
	Reserve(ctx context.Context, accountID, currency string, amount decimal.Decimal) error
	AdjustAvailable(ctx context.Context, accountID, currency string, delta decimal.Decimal) error
	AdjustTotal(ctx context.Context, accountID, currency string, delta decimal.Decimal) error

	GetAssetHolding(ctx context.Context, accountID, symbol string) (AssetHolding, error)
	ListAssetHoldings(ctx context.Context, accountID string) ([]AssetHolding, error)
	// UpsertAssetHolding creates the holding on first fill and accumulates
	// signed deltas afterwards.
	UpsertAssetHolding(ctx context.Context, accountID, symbol string, costDelta, qtyDelta, availDelta decimal.Decimal) error
	// LockAssetQty moves quantity from available to locked for a pending
	// sell. Fails with ErrInsufficientFunds when available would go negative.
	LockAssetQty(ctx context.Context, accountID, symbol string, qty decimal.Decimal) error
}

// FillStore is the history recorder: an append-only log of executed fills.
// Append failures are logged by callers, never rolled back into the fill
// transaction.
type FillStore interface {
	Append(ctx context.Context, f Fill) error
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]Fill, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]Fill, error)
}

// SnapshotProvider supplies a fresh orderbook snapshot for a market.
type SnapshotProvider interface {
	GetOrderBook(ctx context.Context, market string) (OrderbookSnapshot, error)
}

// TickerSource provides the latest trade price for a market, used to convert
// non-KRW-quoted fills into settlement-currency terms.
type TickerSource interface {
	LastPrice(ctx context.Context, market string) (decimal.Decimal, error)
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// LedgerStore implements domain.BalanceLedger using PostgreSQL. All balance
// and holding mutations are signed deltas applied in SQL; the table CHECK
// constraints back the available-within-total invariants, so a violated
// delta aborts the surrounding transaction instead of corrupting state.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// GetBalance retrieves one currency balance for an account.
func (s *LedgerStore) GetBalance(ctx context.Context, accountID, currency string) (domain.Balance, error) {
	var b domain.Balance
	err := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT account_id, currency, total, available FROM balances
		 WHERE account_id = $1 AND currency = $2`,
		accountID, currency,
	).Scan(&b.AccountID, &b.Currency, &b.Total, &b.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Balance{}, domain.ErrNotFound
		}
		return domain.Balance{}, fmt.Errorf("postgres: get balance %s/%s: %w", accountID, currency, err)
	}
	return b, nil
}

// ListBalances returns all currency balances for an account.
func (s *LedgerStore) ListBalances(ctx context.Context, accountID string) ([]domain.Balance, error) {
	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT account_id, currency, total, available FROM balances
		 WHERE account_id = $1 ORDER BY currency`, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances %s: %w", accountID, err)
	}
	defer rows.Close()

	var balances []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.AccountID, &b.Currency, &b.Total, &b.Available); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// CreateBalance opens a currency balance row for the account. A row that
// already exists is left untouched.
func (s *LedgerStore) CreateBalance(ctx context.Context, accountID, currency string, total, available decimal.Decimal) error {
	_, err := querierFrom(ctx, s.pool).Exec(ctx,
		`INSERT INTO balances (account_id, currency, total, available)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, currency) DO NOTHING`,
		accountID, currency, total, available)
	if err != nil {
		return fmt.Errorf("postgres: create balance %s/%s: %w", accountID, currency, err)
	}
	return nil
}

// Reserve moves amount from available to reserved. Total already includes
// the reserved funds, so this is a guarded negative delta on available only.
func (s *LedgerStore) Reserve(ctx context.Context, accountID, currency string, amount decimal.Decimal) error {
	q := querierFrom(ctx, s.pool)
	tag, err := q.Exec(ctx,
		`UPDATE balances SET available = available - $3, updated_at = NOW()
		 WHERE account_id = $1 AND currency = $2 AND available >= $3`,
		accountID, currency, amount)
	if err != nil {
		return fmt.Errorf("postgres: reserve %s %s/%s: %w", amount, accountID, currency, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing balance row from insufficient funds.
		var exists bool
		if err := q.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM balances WHERE account_id = $1 AND currency = $2)`,
			accountID, currency,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: reserve check %s/%s: %w", accountID, currency, err)
		}
		if !exists {
			return domain.ErrAccountNotFound
		}
		return domain.ErrInsufficientFunds
	}
	return nil
}

// AdjustAvailable applies a signed delta to the available balance.
func (s *LedgerStore) AdjustAvailable(ctx context.Context, accountID, currency string, delta decimal.Decimal) error {
	tag, err := querierFrom(ctx, s.pool).Exec(ctx,
		`UPDATE balances SET available = available + $3, updated_at = NOW()
		 WHERE account_id = $1 AND currency = $2`,
		accountID, currency, delta)
	if err != nil {
		return fmt.Errorf("postgres: adjust available %s/%s by %s: %w", accountID, currency, delta, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AdjustTotal applies a signed delta to the total balance.
func (s *LedgerStore) AdjustTotal(ctx context.Context, accountID, currency string, delta decimal.Decimal) error {
	tag, err := querierFrom(ctx, s.pool).Exec(ctx,
		`UPDATE balances SET total = total + $3, updated_at = NOW()
		 WHERE account_id = $1 AND currency = $2`,
		accountID, currency, delta)
	if err != nil {
		return fmt.Errorf("postgres: adjust total %s/%s by %s: %w", accountID, currency, delta, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetAssetHolding retrieves one asset holding for an account.
func (s *LedgerStore) GetAssetHolding(ctx context.Context, accountID, symbol string) (domain.AssetHolding, error) {
	var h domain.AssetHolding
	err := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT account_id, symbol, cumulative_cost, quantity, available FROM assets
		 WHERE account_id = $1 AND symbol = $2`,
		accountID, symbol,
	).Scan(&h.AccountID, &h.Symbol, &h.CumulativeCost, &h.Quantity, &h.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AssetHolding{}, domain.ErrNotFound
		}
		return domain.AssetHolding{}, fmt.Errorf("postgres: get asset %s/%s: %w", accountID, symbol, err)
	}
	return h, nil
}

// ListAssetHoldings returns all non-empty asset holdings for an account.
func (s *LedgerStore) ListAssetHoldings(ctx context.Context, accountID string) ([]domain.AssetHolding, error) {
	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT account_id, symbol, cumulative_cost, quantity, available FROM assets
		 WHERE account_id = $1 AND quantity > 0 ORDER BY symbol`, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assets %s: %w", accountID, err)
	}
	defer rows.Close()

	var holdings []domain.AssetHolding
	for rows.Next() {
		var h domain.AssetHolding
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.CumulativeCost, &h.Quantity, &h.Available); err != nil {
			return nil, fmt.Errorf("postgres: scan asset: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// UpsertAssetHolding creates the holding on first fill and accumulates the
// signed deltas afterwards in a single statement.
func (s *LedgerStore) UpsertAssetHolding(ctx context.Context, accountID, symbol string, costDelta, qtyDelta, availDelta decimal.Decimal) error {
	_, err := querierFrom(ctx, s.pool).Exec(ctx,
		`INSERT INTO assets (account_id, symbol, cumulative_cost, quantity, available, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (account_id, symbol) DO UPDATE SET
		     cumulative_cost = assets.cumulative_cost + EXCLUDED.cumulative_cost,
		     quantity        = assets.quantity + EXCLUDED.quantity,
		     available       = assets.available + EXCLUDED.available,
		     updated_at      = NOW()`,
		accountID, symbol, costDelta, qtyDelta, availDelta)
	if err != nil {
		return fmt.Errorf("postgres: upsert asset %s/%s: %w", accountID, symbol, err)
	}
	return nil
}

// LockAssetQty moves quantity from available to locked for a pending sell.
func (s *LedgerStore) LockAssetQty(ctx context.Context, accountID, symbol string, qty decimal.Decimal) error {
	tag, err := querierFrom(ctx, s.pool).Exec(ctx,
		`UPDATE assets SET available = available - $3, updated_at = NOW()
		 WHERE account_id = $1 AND symbol = $2 AND available >= $3`,
		accountID, symbol, qty)
	if err != nil {
		return fmt.Errorf("postgres: lock asset qty %s/%s: %w", accountID, symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Compile-time interface check.
var _ domain.BalanceLedger = (*LedgerStore)(nil)

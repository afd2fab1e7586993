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

// OrderStore implements domain.OrderStore using PostgreSQL. The pending set
// is the orders table itself: filled and cancelled orders are deleted, so
// every row is matchable.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, account_id, market, side, limit_price, original_qty, remaining_qty, created_at`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side string

	err := scanner.Scan(
		&o.ID, &o.AccountID, &o.Market, &side,
		&o.LimitPrice, &o.OriginalQty, &o.RemainingQty,
		&o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// InsertPending inserts a new pending order.
func (s *OrderStore) InsertPending(ctx context.Context, o domain.Order) error {
	_, err := querierFrom(ctx, s.pool).Exec(ctx,
		`INSERT INTO orders (id, account_id, market, side, limit_price, original_qty, remaining_qty, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.AccountID, o.Market, string(o.Side),
		o.LimitPrice, o.OriginalQty, o.RemainingQty, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	return nil
}

// LockAndLoad fetches the order under a row lock (SELECT ... FOR UPDATE)
// within the ambient transaction. The lock blocks only other transactions
// touching this same order. Returns domain.ErrOrderVanished when the row no
// longer exists, which is the expected outcome when a concurrent attempt
// finished the order first.
func (s *OrderStore) LockAndLoad(ctx context.Context, id string) (domain.Order, error) {
	row := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1 FOR UPDATE`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderVanished
		}
		return domain.Order{}, fmt.Errorf("postgres: lock order %s: %w", id, err)
	}
	return o, nil
}

// UpdateRemaining persists a new remaining quantity for a locked order.
func (s *OrderStore) UpdateRemaining(ctx context.Context, id string, remaining decimal.Decimal) error {
	tag, err := querierFrom(ctx, s.pool).Exec(ctx,
		`UPDATE orders SET remaining_qty = $2 WHERE id = $1`, id, remaining)
	if err != nil {
		return fmt.Errorf("postgres: update order remaining %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderVanished
	}
	return nil
}

// Delete removes an order from the pending set.
func (s *OrderStore) Delete(ctx context.Context, id string) error {
	tag, err := querierFrom(ctx, s.pool).Exec(ctx,
		`DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderVanished
	}
	return nil
}

// ListPending returns all pending orders for one side, oldest first.
func (s *OrderStore) ListPending(ctx context.Context, side domain.OrderSide) ([]domain.Order, error) {
	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE side = $1 ORDER BY created_at`,
		string(side))
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending %s orders: %w", side, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pending %s orders: %w", side, err)
	}
	return orders, nil
}

// ListByAccount returns an account's pending orders with pagination, newest
// first.
func (s *OrderStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by account: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by account: %w", err)
	}
	return orders, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL. Fills are
// append-only; there is no update or delete path.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Append records one executed fill.
func (s *FillStore) Append(ctx context.Context, f domain.Fill) error {
	_, err := querierFrom(ctx, s.pool).Exec(ctx,
		`INSERT INTO fills (id, order_id, account_id, market, side, price, quantity, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.OrderID, f.AccountID, f.Market, string(f.Side), f.Price, f.Quantity, f.Ts,
	)
	if err != nil {
		return fmt.Errorf("postgres: append fill %s: %w", f.ID, err)
	}
	return nil
}

const fillSelectCols = `id, order_id, account_id, market, side, price, quantity, ts`

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side string
		if err := rows.Scan(&f.ID, &f.OrderID, &f.AccountID, &f.Market, &side, &f.Price, &f.Quantity, &f.Ts); err != nil {
			return nil, err
		}
		f.Side = domain.OrderSide(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ListByAccount returns an account's fills with pagination, newest first.
func (s *FillStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Fill, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills
		 WHERE account_id = $1 ORDER BY ts DESC LIMIT $2 OFFSET $3`,
		accountID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills by account: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills by account: %w", err)
	}
	return fills, nil
}

// ListBetween returns all fills executed in [from, to), oldest first. The
// archiver uses this for cold-storage exports.
func (s *FillStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Fill, error) {
	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills
		 WHERE ts >= $1 AND ts < $2 ORDER BY ts`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills between: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills between: %w", err)
	}
	return fills, nil
}

// Compile-time interface check.
var _ domain.FillStore = (*FillStore)(nil)

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, acct domain.Account) error {
	_, err := querierFrom(ctx, s.pool).Exec(ctx,
		`INSERT INTO accounts (id, name, created_at) VALUES ($1, $2, $3)`,
		acct.ID, acct.Name, acct.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create account %s: %w", acct.ID, err)
	}
	return nil
}

// Get retrieves a single account by ID. Returns domain.ErrAccountNotFound
// when the row does not exist.
func (s *AccountStore) Get(ctx context.Context, id string) (domain.Account, error) {
	var acct domain.Account
	err := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT id, name, created_at FROM accounts WHERE id = $1`, id,
	).Scan(&acct.ID, &acct.Name, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return acct, nil
}

// Compile-time interface check.
var _ domain.AccountStore = (*AccountStore)(nil)

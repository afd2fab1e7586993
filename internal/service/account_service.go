package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// HoldingView is an asset holding enriched with its derived average cost.
type HoldingView struct {
	Currency    string
	Quantity    decimal.Decimal
	Available   decimal.Decimal
	AverageCost decimal.Decimal
}

// AccountService exposes read paths over accounts, balances, holdings and
// fill history, plus account creation with an initial seed balance.
type AccountService struct {
	tx       domain.TxManager
	accounts domain.AccountStore
	ledger   domain.BalanceLedger
	fills    domain.FillStore
	logger   *slog.Logger

	settlementCurrency string
	seedBalance        decimal.Decimal
}

// NewAccountService creates an AccountService. New accounts start with
// seedBalance of the settlement currency available.
func NewAccountService(
	tx domain.TxManager,
	accounts domain.AccountStore,
	ledger domain.BalanceLedger,
	fills domain.FillStore,
	settlementCurrency string,
	seedBalance decimal.Decimal,
	logger *slog.Logger,
) *AccountService {
	if settlementCurrency == "" {
		settlementCurrency = "KRW"
	}
	return &AccountService{
		tx:                 tx,
		accounts:           accounts,
		ledger:             ledger,
		fills:              fills,
		settlementCurrency: settlementCurrency,
		seedBalance:        seedBalance,
		logger:             logger.With(slog.String("component", "account_service")),
	}
}

// Create registers a new account and seeds its settlement-currency balance.
func (s *AccountService) Create(ctx context.Context, account domain.Account) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, account); err != nil {
			return err
		}
		// Open the settlement-currency row even for a zero seed; the adjust
		// and reserve operations all require it to exist.
		return s.ledger.CreateBalance(ctx, account.ID, s.settlementCurrency, s.seedBalance, s.seedBalance)
	})
	if err != nil {
		return fmt.Errorf("account_service: create %s: %w", account.ID, err)
	}

	s.logger.InfoContext(ctx, "account created",
		slog.String("account_id", account.ID),
		slog.String("seed", s.seedBalance.String()),
	)
	return nil
}

// Get fetches a single account.
func (s *AccountService) Get(ctx context.Context, id string) (domain.Account, error) {
	return s.accounts.Get(ctx, id)
}

// Balance returns one currency balance for the account.
func (s *AccountService) Balance(ctx context.Context, accountID, currency string) (domain.Balance, error) {
	return s.ledger.GetBalance(ctx, accountID, currency)
}

// Balances returns all currency balances held by the account.
func (s *AccountService) Balances(ctx context.Context, accountID string) ([]domain.Balance, error) {
	return s.ledger.ListBalances(ctx, accountID)
}

// Holdings returns the account's asset positions with average cost derived
// from cumulative cost and quantity.
func (s *AccountService) Holdings(ctx context.Context, accountID string) ([]HoldingView, error) {
	holdings, err := s.ledger.ListAssetHoldings(ctx, accountID)
	if err != nil {
		return nil, err
	}

	views := make([]HoldingView, 0, len(holdings))
	for _, h := range holdings {
		views = append(views, HoldingView{
			Currency:    h.Symbol,
			Quantity:    h.Quantity,
			Available:   h.Available,
			AverageCost: h.AverageCost(),
		})
	}
	return views, nil
}

// Fills returns the account's fill history, newest first.
func (s *AccountService) Fills(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Fill, error) {
	return s.fills.ListByAccount(ctx, accountID, opts)
}

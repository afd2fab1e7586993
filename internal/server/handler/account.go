package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/service"
)

// AccountService is what the account handler needs from the service layer.
type AccountService interface {
	Create(ctx context.Context, account domain.Account) error
	Get(ctx context.Context, id string) (domain.Account, error)
	Balances(ctx context.Context, accountID string) ([]domain.Balance, error)
	Holdings(ctx context.Context, accountID string) ([]service.HoldingView, error)
	Fills(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Fill, error)
}

// AccountHandler serves account registration and the read-side endpoints:
// balances, asset holdings, and fill history.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger,
	}
}

type createAccountRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateAccount registers a new account with the configured seed balance.
// POST /api/accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	acct := domain.Account{
		ID:        req.ID,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.accounts.Create(r.Context(), acct); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create account failed",
			slog.String("account_id", req.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":   acct.ID,
		"name": acct.Name,
	})
}

// GetAccount returns one account.
// GET /api/accounts/{id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	acct, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get account failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":         acct.ID,
		"name":       acct.Name,
		"created_at": acct.CreatedAt.Format(time.RFC3339Nano),
	})
}

type balanceResponse struct {
	Currency  string `json:"currency"`
	Total     string `json:"total"`
	Available string `json:"available"`
}

// ListBalances returns the account's currency balances.
// GET /api/accounts/{id}/balances
func (h *AccountHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	balances, err := h.accounts.Balances(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list balances failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list balances")
		return
	}

	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{
			Currency:  b.Currency,
			Total:     b.Total.String(),
			Available: b.Available.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": out})
}

type holdingResponse struct {
	Currency    string `json:"currency"`
	Quantity    string `json:"quantity"`
	Available   string `json:"available"`
	AverageCost string `json:"average_cost"`
}

// ListHoldings returns the account's asset positions with average cost.
// GET /api/accounts/{id}/assets
func (h *AccountHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	holdings, err := h.accounts.Holdings(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list holdings failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list holdings")
		return
	}

	out := make([]holdingResponse, 0, len(holdings))
	for _, hv := range holdings {
		out = append(out, holdingResponse{
			Currency:    hv.Currency,
			Quantity:    hv.Quantity.String(),
			Available:   hv.Available.String(),
			AverageCost: hv.AverageCost.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"holdings": out})
}

type fillResponse struct {
	FillID   string `json:"fill_id"`
	OrderID  string `json:"order_id"`
	Market   string `json:"market"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Ts       string `json:"ts"`
}

// ListFills returns the account's fill history, newest first.
// GET /api/accounts/{id}/fills?limit=50&offset=0
func (h *AccountHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	fills, err := h.accounts.Fills(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list fills failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list fills")
		return
	}

	out := make([]fillResponse, 0, len(fills))
	for _, f := range fills {
		out = append(out, fillResponse{
			FillID:   f.ID,
			OrderID:  f.OrderID,
			Market:   f.Market,
			Side:     string(f.Side),
			Price:    f.Price.String(),
			Quantity: f.Quantity.String(),
			Ts:       f.Ts.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"fills": out})
}

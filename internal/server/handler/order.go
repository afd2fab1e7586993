package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/service"
)

// OrderService is what the order handler needs from the service layer.
type OrderService interface {
	Place(ctx context.Context, req service.PlaceOrderRequest) (domain.Order, error)
	Cancel(ctx context.Context, accountID, orderID string) error
	ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error)
}

// OrderHandler serves order creation, cancellation and listing.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

type placeOrderRequest struct {
	AccountID string `json:"account_id"`
	Market    string `json:"market"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
}

type orderResponse struct {
	OrderID      string `json:"order_id"`
	AccountID    string `json:"account_id"`
	Market       string `json:"market"`
	Side         string `json:"side"`
	LimitPrice   string `json:"limit_price"`
	OriginalQty  string `json:"original_qty"`
	RemainingQty string `json:"remaining_qty"`
	CreatedAt    string `json:"created_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		OrderID:      o.ID,
		AccountID:    o.AccountID,
		Market:       o.Market,
		Side:         string(o.Side),
		LimitPrice:   o.LimitPrice.String(),
		OriginalQty:  o.OriginalQty.String(),
		RemainingQty: o.RemainingQty.String(),
		CreatedAt:    o.CreatedAt.Format(time.RFC3339Nano),
	}
}

// PlaceOrder creates a new limit order.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AccountID == "" || req.Market == "" {
		writeError(w, http.StatusBadRequest, "account_id and market are required")
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price: "+req.Price)
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quantity: "+req.Quantity)
		return
	}

	order, err := h.orders.Place(r.Context(), service.PlaceOrderRequest{
		AccountID: req.AccountID,
		Market:    req.Market,
		Side:      domain.OrderSide(req.Side),
		Price:     price,
		Quantity:  qty,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidValue),
			errors.Is(err, domain.ErrInvalidOrder),
			errors.Is(err, domain.ErrBelowMinNotional):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "account not found")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
		default:
			h.logger.ErrorContext(r.Context(), "handler: place order failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place order")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// CancelOrder cancels a pending order.
// DELETE /api/orders/{id}?account_id=...
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	accountID := r.URL.Query().Get("account_id")
	if id == "" || accountID == "" {
		writeError(w, http.StatusBadRequest, "order id and account_id are required")
		return
	}

	if err := h.orders.Cancel(r.Context(), accountID, id); err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderVanished):
			writeError(w, http.StatusConflict, "order already filled or cancelled")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		default:
			h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel order")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
	})
}

// ListOrders returns an account's pending orders.
// GET /api/orders?account_id=...&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account_id query parameter required")
		return
	}

	orders, err := h.orders.ListByAccount(r.Context(), accountID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/dispatcher"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/money"
)

// Notifier delivers operator notifications for order lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Dispatcher executes order persistence on a bounded worker pool.
type Dispatcher interface {
	Submit(task dispatcher.Task) (<-chan error, error)
}

// PlaceOrderRequest carries a validated order-creation request.
type PlaceOrderRequest struct {
	AccountID string
	Market    string // e.g. "KRW-BTC"
	Side      domain.OrderSide
	Price     decimal.Decimal // limit price in the market's quote currency
	Quantity  decimal.Decimal
}

// OrderService handles the order lifecycle entry points: creation (with fund
// reservation) and cancellation (with reservation release). The matching
// engine owns everything in between.
type OrderService struct {
	cfg      Config
	rules    money.Rules
	tx       domain.TxManager
	accounts domain.AccountStore
	orders   domain.OrderStore
	ledger   domain.BalanceLedger
	tickers  domain.TickerSource
	bus      domain.SignalBus // optional
	notifier Notifier         // optional
	pool     Dispatcher       // optional; nil runs persistence inline
	logger   *slog.Logger
}

// Config holds the order-creation rules.
type Config struct {
	// SettlementCurrency is the currency balances settle in.
	SettlementCurrency string
	// MinNotional is the minimum trade size: price x quantity in settlement
	// currency must meet it.
	MinNotional decimal.Decimal
}

// NewOrderService creates an OrderService. bus, notifier and pool may be nil.
func NewOrderService(
	cfg Config,
	rules money.Rules,
	tx domain.TxManager,
	accounts domain.AccountStore,
	orders domain.OrderStore,
	ledger domain.BalanceLedger,
	tickers domain.TickerSource,
	bus domain.SignalBus,
	notifier Notifier,
	pool Dispatcher,
	logger *slog.Logger,
) *OrderService {
	if cfg.SettlementCurrency == "" {
		cfg.SettlementCurrency = "KRW"
	}
	return &OrderService{
		cfg:      cfg,
		rules:    rules,
		tx:       tx,
		accounts: accounts,
		orders:   orders,
		ledger:   ledger,
		tickers:  tickers,
		bus:      bus,
		notifier: notifier,
		pool:     pool,
		logger:   logger.With(slog.String("component", "order_service")),
	}
}

// Place validates the request, reserves funds, and persists the pending
// order inside one transaction. The order-created event fires after commit.
// Rejections (invalid values, below minimum size, insufficient funds)
// propagate synchronously to the caller with an explicit reason.
func (s *OrderService) Place(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	if !req.Side.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown side %q", domain.ErrInvalidOrder, req.Side)
	}
	if err := s.rules.Check(req.Price); err != nil {
		return domain.Order{}, err
	}
	if err := s.rules.Check(req.Quantity); err != nil {
		return domain.Order{}, err
	}
	if !req.Quantity.IsPositive() {
		return domain.Order{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidOrder)
	}
	if !req.Price.IsPositive() {
		return domain.Order{}, fmt.Errorf("%w: price must be positive", domain.ErrInvalidOrder)
	}

	// Convert the limit price into settlement-currency terms up front, so
	// the order carries a stable reserved price regardless of later moves
	// in the quote currency.
	limitPrice, err := s.settlementLimit(ctx, req)
	if err != nil {
		return domain.Order{}, err
	}

	notional := s.rules.Truncate(limitPrice.Mul(req.Quantity))
	if !s.rules.MeetsMinNotional(limitPrice, req.Quantity, s.cfg.MinNotional) {
		return domain.Order{}, fmt.Errorf("%w: notional %s below %s",
			domain.ErrBelowMinNotional, notional, s.cfg.MinNotional)
	}

	order := domain.Order{
		ID:           uuid.New().String(),
		AccountID:    req.AccountID,
		Market:       req.Market,
		Side:         req.Side,
		LimitPrice:   limitPrice,
		OriginalQty:  req.Quantity,
		RemainingQty: req.Quantity,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.runPersist(ctx, order, notional); err != nil {
		return domain.Order{}, err
	}

	s.publishCreated(ctx, order)
	return order, nil
}

// runPersist executes the reserve-and-insert transaction, through the worker
// pool when one is wired. The transaction runs under the caller's context;
// the pool only bounds how many persist steps run at once.
func (s *OrderService) runPersist(ctx context.Context, order domain.Order, notional decimal.Decimal) error {
	persist := func(context.Context) error {
		return s.persist(ctx, order, notional)
	}

	if s.pool == nil {
		return persist(ctx)
	}

	result, err := s.pool.Submit(persist)
	if err != nil {
		return fmt.Errorf("order_service: submit: %w", err)
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *OrderService) persist(ctx context.Context, order domain.Order, notional decimal.Decimal) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.accounts.Get(ctx, order.AccountID); err != nil {
			return err
		}

		switch order.Side {
		case domain.OrderSideBuy:
			if err := s.ledger.Reserve(ctx, order.AccountID, s.cfg.SettlementCurrency, notional); err != nil {
				return err
			}
		case domain.OrderSideSell:
			if err := s.ledger.LockAssetQty(ctx, order.AccountID, order.Coin(), order.OriginalQty); err != nil {
				return err
			}
		}

		return s.orders.InsertPending(ctx, order)
	})
}

// settlementLimit returns the limit price in settlement-currency terms,
// converting through the quote currency's reference market when needed.
func (s *OrderService) settlementLimit(ctx context.Context, req PlaceOrderRequest) (decimal.Decimal, error) {
	quote := quoteOf(req.Market)
	if quote == s.cfg.SettlementCurrency {
		return req.Price, nil
	}

	factor, err := s.tickers.LastPrice(ctx, s.cfg.SettlementCurrency+"-"+quote)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return decimal.Decimal{}, fmt.Errorf("%w: no reference price for %s", domain.ErrInvalidOrder, quote)
		}
		return decimal.Decimal{}, fmt.Errorf("order_service: reference price %s: %w", quote, err)
	}
	return s.rules.Truncate(req.Price.Mul(factor)), nil
}

// Cancel removes a pending order and releases its remaining reservation.
// Cancelling an order that a concurrent fill just finished returns
// domain.ErrOrderVanished.
func (s *OrderService) Cancel(ctx context.Context, accountID, orderID string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.LockAndLoad(ctx, orderID)
		if err != nil {
			return err
		}
		if order.AccountID != accountID {
			return domain.ErrNotFound
		}

		if err := s.orders.Delete(ctx, orderID); err != nil {
			return err
		}

		switch order.Side {
		case domain.OrderSideBuy:
			release := s.rules.Truncate(order.ReservedNotional())
			if release.IsZero() {
				return nil
			}
			return s.ledger.AdjustAvailable(ctx, accountID, s.cfg.SettlementCurrency, release)
		case domain.OrderSideSell:
			if order.RemainingQty.IsZero() {
				return nil
			}
			return s.ledger.UpsertAssetHolding(ctx, accountID, order.Coin(),
				decimal.Zero, decimal.Zero, order.RemainingQty)
		}
		return nil
	})
}

// ListByAccount returns the account's pending orders.
func (s *OrderService) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.orders.ListByAccount(ctx, accountID, opts)
}

// publishCreated fires the order-created fact to downstream consumers. This
// is best-effort: the order is already committed.
func (s *OrderService) publishCreated(ctx context.Context, order domain.Order) {
	if s.bus != nil {
		payload, err := json.Marshal(domain.OrderCreatedEvent{
			OrderID:   order.ID,
			AccountID: order.AccountID,
			Market:    order.Market,
			Side:      order.Side,
			Price:     order.LimitPrice.String(),
			Quantity:  order.OriginalQty.String(),
			CreatedAt: order.CreatedAt,
		})
		if err == nil {
			if err := s.bus.Publish(ctx, domain.ChannelOrders, payload); err != nil {
				s.logger.WarnContext(ctx, "order event publish failed",
					slog.String("order_id", order.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("%s %s %s @ %s", order.Side, order.OriginalQty, order.Market, order.LimitPrice)
		if err := s.notifier.Notify(ctx, "order_created", "Order created", msg); err != nil {
			s.logger.WarnContext(ctx, "order notification failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func quoteOf(market string) string {
	for i := 0; i < len(market); i++ {
		if market[i] == '-' {
			return market[:i]
		}
	}
	return market
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// errNoProgress aborts a fill transaction when the level cannot contribute a
// meaningful quantity. Nothing has been written at that point, so the
// rollback is a no-op; the attempt stops at this level.
var errNoProgress = errors.New("no fillable quantity at level")

// attempt advances one pending order against a fresh orderbook snapshot.
// The snapshot and the reference factor are fetched once, so the whole
// attempt sees a single consistent view of the market even though the book
// moves between cycles. Returns nil when the order vanished under a
// concurrent attempt; that is the expected race, not an error.
func (m *Matcher) attempt(ctx context.Context, o domain.Order) error {
	snap, err := m.books.GetOrderBook(ctx, o.Market)
	if err != nil {
		return fmt.Errorf("fetch orderbook %s: %w", o.Market, err)
	}

	factor, err := m.referenceFactor(ctx, o)
	if err != nil {
		return fmt.Errorf("reference factor %s: %w", o.Market, err)
	}

	// Load the owner's account context once per attempt, not once per level.
	// Funds were reserved at creation, so this validates existence only.
	if o.Side == domain.OrderSideBuy {
		if _, err := m.ledger.GetBalance(ctx, o.AccountID, m.cfg.SettlementCurrency); err != nil {
			return fmt.Errorf("load balance: %w", err)
		}
	} else {
		if _, err := m.ledger.GetAssetHolding(ctx, o.AccountID, o.Coin()); err != nil {
			return fmt.Errorf("load holding: %w", err)
		}
	}

	for _, level := range snap.Levels(o.Side) {
		effPrice := m.rules.Truncate(level.Price.Mul(factor))

		// Stop at the first level crossing the limit: the rest of the book
		// is unreachable this cycle. Not an error, just nothing more to do.
		if o.Side == domain.OrderSideBuy && effPrice.GreaterThan(o.LimitPrice) {
			return nil
		}
		if o.Side == domain.OrderSideSell && effPrice.LessThan(o.LimitPrice) {
			return nil
		}

		terminal, err := m.fillLevel(ctx, o, level, effPrice)
		if err != nil {
			if errors.Is(err, domain.ErrOrderVanished) || errors.Is(err, errNoProgress) {
				return nil
			}
			return err
		}
		if terminal {
			return nil
		}
	}
	return nil
}

// referenceFactor converts quote-currency prices into settlement-currency
// terms: 1 for markets already quoted in the settlement currency, otherwise
// the last trade price of the quote currency's own settlement market
// (e.g. KRW-BTC for a BTC-quoted pair).
func (m *Matcher) referenceFactor(ctx context.Context, o domain.Order) (decimal.Decimal, error) {
	quote := o.Quote()
	if quote == m.cfg.SettlementCurrency {
		return decimal.NewFromInt(1), nil
	}
	factor, err := m.tickers.LastPrice(ctx, m.cfg.SettlementCurrency+"-"+quote)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if factor.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("zero reference price for %s", quote)
	}
	return factor, nil
}

// fillLevel executes at most one fill against one orderbook level inside a
// single short transaction: re-load the order under its row lock, subtract
// the fill, apply the balance and holding deltas, commit. Any failure before
// commit rolls back fully. The fill record and event are emitted after
// commit; their failure is logged, never propagated into the transaction.
func (m *Matcher) fillLevel(ctx context.Context, o domain.Order, level domain.PriceLevel, effPrice decimal.Decimal) (terminal bool, err error) {
	var fill domain.Fill
	var remaining decimal.Decimal

	err = m.tx.WithinTx(ctx, func(ctx context.Context) error {
		cur, err := m.orders.LockAndLoad(ctx, o.ID)
		if err != nil {
			return err
		}
		if m.rules.IsDust(cur.RemainingQty) {
			// Already finished by a concurrent attempt.
			return domain.ErrOrderVanished
		}

		qty := m.rules.Truncate(decimal.Min(cur.RemainingQty, level.Size))
		if m.rules.IsDust(qty) {
			return errNoProgress
		}

		newRemaining := m.rules.Truncate(cur.RemainingQty.Sub(qty))
		cost := m.rules.Truncate(effPrice.Mul(qty))

		if m.rules.IsDust(newRemaining) {
			// Terminal: a dust residual is never persisted as pending.
			if err := m.orders.Delete(ctx, cur.ID); err != nil {
				return err
			}
		} else {
			if err := m.orders.UpdateRemaining(ctx, cur.ID, newRemaining); err != nil {
				return err
			}
		}

		switch cur.Side {
		case domain.OrderSideBuy:
			if err := m.settleBuy(ctx, cur, effPrice, qty, cost, newRemaining); err != nil {
				return err
			}
		case domain.OrderSideSell:
			if err := m.settleSell(ctx, cur, qty, cost, newRemaining); err != nil {
				return err
			}
		}

		fill = domain.Fill{
			ID:        uuid.New().String(),
			OrderID:   cur.ID,
			AccountID: cur.AccountID,
			Market:    cur.Market,
			Side:      cur.Side,
			Price:     effPrice,
			Quantity:  qty,
			Ts:        time.Now().UTC(),
		}
		remaining = newRemaining
		return nil
	})
	if err != nil {
		return false, err
	}

	m.recordFill(ctx, fill, remaining)
	return m.rules.IsDust(remaining), nil
}

// settleBuy reconciles a buy fill: refund the spread between the reserved
// price and the actual price into available balance, debit the actual cost
// from total, and accumulate the holding. The bought quantity is available
// immediately.
func (m *Matcher) settleBuy(ctx context.Context, o domain.Order, price, qty, cost, newRemaining decimal.Decimal) error {
	currency := m.cfg.SettlementCurrency

	refund := m.rules.Truncate(o.LimitPrice.Sub(price).Mul(qty))
	if !refund.IsZero() {
		if err := m.ledger.AdjustAvailable(ctx, o.AccountID, currency, refund); err != nil {
			return err
		}
	}
	if err := m.ledger.AdjustTotal(ctx, o.AccountID, currency, cost.Neg()); err != nil {
		return err
	}

	// A terminal order releases the reservation held for its dust residual.
	if m.rules.IsDust(newRemaining) && !newRemaining.IsZero() {
		residual := m.rules.Truncate(o.LimitPrice.Mul(newRemaining))
		if !residual.IsZero() {
			if err := m.ledger.AdjustAvailable(ctx, o.AccountID, currency, residual); err != nil {
				return err
			}
		}
	}

	return m.ledger.UpsertAssetHolding(ctx, o.AccountID, o.Coin(), cost, qty, qty)
}

// settleSell reconciles a sell fill: debit the sold quantity and its share
// of cumulative cost from the holding, credit the proceeds to the balance.
// The sold quantity was locked at creation, so available is not touched
// except to release a terminal dust residual.
func (m *Matcher) settleSell(ctx context.Context, o domain.Order, qty, proceeds, newRemaining decimal.Decimal) error {
	currency := m.cfg.SettlementCurrency
	symbol := o.Coin()

	holding, err := m.ledger.GetAssetHolding(ctx, o.AccountID, symbol)
	if err != nil {
		return err
	}
	costShare := m.rules.Truncate(holding.AverageCost().Mul(qty))
	if costShare.GreaterThan(holding.CumulativeCost) {
		costShare = holding.CumulativeCost
	}

	availRelease := decimal.Zero
	if m.rules.IsDust(newRemaining) && !newRemaining.IsZero() {
		availRelease = newRemaining
	}
	if err := m.ledger.UpsertAssetHolding(ctx, o.AccountID, symbol, costShare.Neg(), qty.Neg(), availRelease); err != nil {
		return err
	}

	if err := m.ledger.AdjustTotal(ctx, o.AccountID, currency, proceeds); err != nil {
		return err
	}
	return m.ledger.AdjustAvailable(ctx, o.AccountID, currency, proceeds)
}

// recordFill appends to the history log and publishes the fill event. Both
// are fire-and-forget: the balance transaction has already committed, so
// failures here are logged, never rolled back.
func (m *Matcher) recordFill(ctx context.Context, fill domain.Fill, remaining decimal.Decimal) {
	if err := m.fills.Append(ctx, fill); err != nil {
		m.logger.ErrorContext(ctx, "fill history append failed",
			slog.String("fill_id", fill.ID),
			slog.String("order_id", fill.OrderID),
			slog.String("error", err.Error()),
		)
	}

	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.FillEvent{
		FillID:    fill.ID,
		OrderID:   fill.OrderID,
		AccountID: fill.AccountID,
		Market:    fill.Market,
		Side:      fill.Side,
		Price:     fill.Price.String(),
		Quantity:  fill.Quantity.String(),
		Remaining: remaining.String(),
		Ts:        fill.Ts,
	})
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, domain.ChannelFills, payload); err != nil {
		m.logger.WarnContext(ctx, "fill event publish failed",
			slog.String("fill_id", fill.ID),
			slog.String("error", err.Error()),
		)
	}
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Order represents a user's standing limit order. A pending buy order has
// quote-currency funds reserved at creation time; a pending sell has asset
// quantity locked. The matching engine is the only writer of RemainingQty
// after creation, always under a row lock. An order is terminal once
// RemainingQty drops below the dust threshold, at which point its row is
// deleted from the pending set.
type Order struct {
	ID           string
	AccountID    string
	Market       string // e.g. "KRW-BTC"
	Side         OrderSide
	LimitPrice   decimal.Decimal // in settlement-currency terms
	OriginalQty  decimal.Decimal
	RemainingQty decimal.Decimal
	CreatedAt    time.Time
}

// Coin returns the base asset symbol of the order's market ("BTC" for
// "KRW-BTC"). A market string without a separator is returned unchanged.
func (o Order) Coin() string {
	for i := 0; i < len(o.Market); i++ {
		if o.Market[i] == '-' {
			return o.Market[i+1:]
		}
	}
	return o.Market
}

// Quote returns the quote currency of the order's market ("KRW" for
// "KRW-BTC").
func (o Order) Quote() string {
	for i := 0; i < len(o.Market); i++ {
		if o.Market[i] == '-' {
			return o.Market[:i]
		}
	}
	return o.Market
}

// ReservedNotional is the settlement-currency amount still reserved for
// the unfilled remainder of a buy order.
func (o Order) ReservedNotional() decimal.Decimal {
	return o.LimitPrice.Mul(o.RemainingQty)
}

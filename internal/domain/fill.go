package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is an immutable record of one matched execution against one order-book
// level. Fills are write-once and append-only; the matching engine emits them
// outside the fill transaction, so a lost fill record never implies a lost
// balance change.
type Fill struct {
	ID        string
	OrderID   string
	AccountID string
	Market    string
	Side      OrderSide
	Price     decimal.Decimal // settlement-currency price actually paid
	Quantity  decimal.Decimal
	Ts        time.Time
}

// Cost is the settlement-currency notional of the fill.
func (f Fill) Cost() decimal.Decimal {
	return f.Price.Mul(f.Quantity)
}

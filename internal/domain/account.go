package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a simulated trading account. Provisioning and authentication
// live outside this system; accounts appear here only so balances and orders
// have an owner to validate against.
type Account struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Balance is an account's holdings of one settlement currency. Available is
// the unreserved portion: funds committed to pending buy orders stay inside
// Total but are subtracted from Available until filled or cancelled.
//
// Invariant: 0 <= Available <= Total, both truncated to the fixed precision.
type Balance struct {
	AccountID string
	Currency  string // e.g. "KRW"
	Total     decimal.Decimal
	Available decimal.Decimal
}

// AssetHolding is an account's position in one coin. CumulativeCost is the
// running sum of fill costs (price x quantity over all fills), never a
// per-unit price.
//
// Invariant: Quantity >= Available >= 0.
type AssetHolding struct {
	AccountID      string
	Symbol         string // e.g. "BTC"
	CumulativeCost decimal.Decimal
	Quantity       decimal.Decimal
	Available      decimal.Decimal
}

// AverageCost returns cumulative cost divided by quantity, the per-unit
// average entry price. Returns zero for an empty holding.
func (h AssetHolding) AverageCost() decimal.Decimal {
	if h.Quantity.IsZero() {
		return decimal.Zero
	}
	return h.CumulativeCost.Div(h.Quantity)
}

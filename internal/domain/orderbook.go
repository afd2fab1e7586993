package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderbookSnapshot is a read-only snapshot of market depth for one market,
// externally owned and re-fetched per matching attempt. Asks are sorted
// ascending and bids descending, so both sides read best-price-first.
type OrderbookSnapshot struct {
	Market    string
	Asks      []PriceLevel
	Bids      []PriceLevel
	Timestamp time.Time
}

// Levels returns the side of the book a given order fills against,
// best-price-first: asks for a buy, bids for a sell.
func (s OrderbookSnapshot) Levels(side OrderSide) []PriceLevel {
	if side == OrderSideBuy {
		return s.Asks
	}
	return s.Bids
}

// Ticker is the most recent trade price for a market.
type Ticker struct {
	Market     string
	TradePrice decimal.Decimal
	Ts         time.Time
}

package domain

import "time"

// Pub/sub channels carried over the signal bus and bridged to websocket
// clients by the server hub.
const (
	ChannelOrders  = "ch:order"
	ChannelFills   = "ch:fill"
	ChannelTickers = "ch:ticker"
)

// OrderCreatedEvent is published after an order-creation transaction commits.
type OrderCreatedEvent struct {
	OrderID   string    `json:"order_id"`
	AccountID string    `json:"account_id"`
	Market    string    `json:"market"`
	Side      OrderSide `json:"side"`
	Price     string    `json:"price"`
	Quantity  string    `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// FillEvent is published after a fill transaction commits.
type FillEvent struct {
	FillID    string    `json:"fill_id"`
	OrderID   string    `json:"order_id"`
	AccountID string    `json:"account_id"`
	Market    string    `json:"market"`
	Side      OrderSide `json:"side"`
	Price     string    `json:"price"`
	Quantity  string    `json:"quantity"`
	Remaining string    `json:"remaining"`
	Ts        time.Time `json:"ts"`
}

// TickerEvent mirrors the upstream ticker stream for websocket consumers.
type TickerEvent struct {
	Market     string    `json:"market"`
	TradePrice string    `json:"trade_price"`
	Ts         time.Time `json:"ts"`
}

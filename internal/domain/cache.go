package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest ticker prices.
type PriceCache interface {
	SetTicker(ctx context.Context, t Ticker) error
	GetTicker(ctx context.Context, market string) (Ticker, error)
}

// OrderbookCache stores recent orderbook snapshots with a short TTL so both
// matching loops in one cycle share a single upstream fetch per market.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, snap OrderbookSnapshot) error
	GetSnapshot(ctx context.Context, market string) (OrderbookSnapshot, error)
}

// RateLimiter provides distributed rate limiting for the API surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. The matcher uses it to keep one
// matching cycle per side across replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of order and market events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// OrderbookCache implements domain.OrderbookCache using Redis string keys
// with a short TTL. Caching means the buy and sell matching loops within one
// cycle interval share a single upstream fetch per market instead of hitting
// the exchange twice.
type OrderbookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
// Snapshots expire after ttl so each matching cycle still sees a live book.
func NewOrderbookCache(c *Client, ttl time.Duration) *OrderbookCache {
	if ttl <= 0 {
		ttl = time.Second
	}
	return &OrderbookCache{rdb: c.Underlying(), ttl: ttl}
}

func bookKey(market string) string {
	return "book:" + market
}

// cachedLevel is the JSON wire form of one price level. Decimals travel as
// strings to preserve precision.
type cachedLevel struct {
	Price string `json:"p"`
	Size  string `json:"s"`
}

type cachedSnapshot struct {
	Market string        `json:"market"`
	Asks   []cachedLevel `json:"asks"`
	Bids   []cachedLevel `json:"bids"`
	Ts     int64         `json:"ts"` // Unix nanoseconds
}

func toCached(snap domain.OrderbookSnapshot) cachedSnapshot {
	c := cachedSnapshot{
		Market: snap.Market,
		Asks:   make([]cachedLevel, 0, len(snap.Asks)),
		Bids:   make([]cachedLevel, 0, len(snap.Bids)),
		Ts:     snap.Timestamp.UnixNano(),
	}
	for _, l := range snap.Asks {
		c.Asks = append(c.Asks, cachedLevel{Price: l.Price.String(), Size: l.Size.String()})
	}
	for _, l := range snap.Bids {
		c.Bids = append(c.Bids, cachedLevel{Price: l.Price.String(), Size: l.Size.String()})
	}
	return c
}

func fromCached(c cachedSnapshot) (domain.OrderbookSnapshot, error) {
	snap := domain.OrderbookSnapshot{
		Market:    c.Market,
		Asks:      make([]domain.PriceLevel, 0, len(c.Asks)),
		Bids:      make([]domain.PriceLevel, 0, len(c.Bids)),
		Timestamp: time.Unix(0, c.Ts),
	}
	for _, l := range c.Asks {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return domain.OrderbookSnapshot{}, err
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil {
			return domain.OrderbookSnapshot{}, err
		}
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: price, Size: size})
	}
	for _, l := range c.Bids {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return domain.OrderbookSnapshot{}, err
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil {
			return domain.OrderbookSnapshot{}, err
		}
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: price, Size: size})
	}
	return snap, nil
}

// SetSnapshot stores a snapshot under the market key with the cache TTL.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, snap domain.OrderbookSnapshot) error {
	data, err := json.Marshal(toCached(snap))
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Market, err)
	}
	if err := oc.rdb.Set(ctx, bookKey(snap.Market), data, oc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Market, err)
	}
	return nil
}

// GetSnapshot retrieves a cached snapshot. Returns domain.ErrNotFound when
// the key is missing or expired.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, market string) (domain.OrderbookSnapshot, error) {
	data, err := oc.rdb.Get(ctx, bookKey(market)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderbookSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", market, err)
	}

	var c cachedSnapshot
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", market, err)
	}
	snap, err := fromCached(c)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", market, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.OrderbookCache = (*OrderbookCache)(nil)

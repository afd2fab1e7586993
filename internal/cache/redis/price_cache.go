package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// last trade price is stored at key "ticker:{market}" with fields "price"
// (decimal string) and "ts" (Unix nanosecond timestamp). The matcher reads
// it as the reference factor for non-KRW-quoted markets; the ws hub streams
// it to clients.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func tickerKey(market string) string {
	return "ticker:" + market
}

// SetTicker stores the latest trade price for a market.
func (pc *PriceCache) SetTicker(ctx context.Context, t domain.Ticker) error {
	fields := map[string]interface{}{
		"price": t.TradePrice.String(),
		"ts":    strconv.FormatInt(t.Ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, tickerKey(t.Market), fields).Err(); err != nil {
		return fmt.Errorf("redis: set ticker %s: %w", t.Market, err)
	}
	return nil
}

// GetTicker retrieves the latest trade price for a market. Returns
// domain.ErrNotFound when no ticker has been seen for the market.
func (pc *PriceCache) GetTicker(ctx context.Context, market string) (domain.Ticker, error) {
	vals, err := pc.rdb.HGetAll(ctx, tickerKey(market)).Result()
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("redis: get ticker %s: %w", market, err)
	}
	if len(vals) == 0 {
		return domain.Ticker{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.Ticker{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("redis: parse ticker price %s: %w", market, err)
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("redis: parse ticker ts %s: %w", market, err)
	}

	return domain.Ticker{
		Market:     market,
		TradePrice: price,
		Ts:         time.Unix(0, tsNano),
	}, nil
}

// LastPrice implements domain.TickerSource on top of the cache.
func (pc *PriceCache) LastPrice(ctx context.Context, market string) (decimal.Decimal, error) {
	t, err := pc.GetTicker(ctx, market)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return decimal.Decimal{}, domain.ErrNotFound
		}
		return decimal.Decimal{}, err
	}
	return t.TradePrice, nil
}

// Compile-time interface checks.
var (
	_ domain.PriceCache   = (*PriceCache)(nil)
	_ domain.TickerSource = (*PriceCache)(nil)
)

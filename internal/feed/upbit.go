// Package feed ingests market data from the Upbit exchange: orderbook
// snapshots over REST for the matching engine, and a ticker stream over
// websocket for reference prices and client streaming.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// UpbitClient is the REST client for the Upbit quotation API. It is
// read-only: this system never places orders upstream.
type UpbitClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewUpbitClient creates a new Upbit REST client.
//
// baseURL is the quotation API root, e.g. "https://api.upbit.com".
func NewUpbitClient(baseURL string) *UpbitClient {
	return &UpbitClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// orderbookResponse mirrors the Upbit /v1/orderbook payload.
type orderbookResponse struct {
	Market    string `json:"market"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
	Units     []struct {
		AskPrice float64 `json:"ask_price"`
		BidPrice float64 `json:"bid_price"`
		AskSize  float64 `json:"ask_size"`
		BidSize  float64 `json:"bid_size"`
	} `json:"orderbook_units"`
}

// GetOrderBook implements domain.SnapshotProvider. Upbit returns units
// sorted best-price-first on both sides (asks ascending, bids descending),
// which is the order the fill loop expects.
func (c *UpbitClient) GetOrderBook(ctx context.Context, market string) (domain.OrderbookSnapshot, error) {
	endpoint := fmt.Sprintf("%s/v1/orderbook?markets=%s", c.baseURL, url.QueryEscape(market))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("upbit: build orderbook request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("upbit: fetch orderbook %s: %w", market, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("upbit: read orderbook %s: %w", market, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.OrderbookSnapshot{}, fmt.Errorf("upbit: orderbook %s: status %d: %s", market, resp.StatusCode, body)
	}

	var books []orderbookResponse
	if err := json.Unmarshal(body, &books); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("upbit: decode orderbook %s: %w", market, err)
	}
	if len(books) == 0 {
		return domain.OrderbookSnapshot{}, fmt.Errorf("upbit: orderbook %s: %w", market, domain.ErrNotFound)
	}

	book := books[0]
	snap := domain.OrderbookSnapshot{
		Market:    book.Market,
		Asks:      make([]domain.PriceLevel, 0, len(book.Units)),
		Bids:      make([]domain.PriceLevel, 0, len(book.Units)),
		Timestamp: time.UnixMilli(book.Timestamp),
	}
	for _, u := range book.Units {
		snap.Asks = append(snap.Asks, domain.PriceLevel{
			Price: decimal.NewFromFloat(u.AskPrice),
			Size:  decimal.NewFromFloat(u.AskSize),
		})
		snap.Bids = append(snap.Bids, domain.PriceLevel{
			Price: decimal.NewFromFloat(u.BidPrice),
			Size:  decimal.NewFromFloat(u.BidSize),
		})
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotProvider = (*UpbitClient)(nil)

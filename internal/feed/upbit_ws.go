package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// TickerHandler is called for each ticker message received from the stream.
type TickerHandler func(ctx context.Context, t domain.Ticker)

// UpbitTickerFeed connects to the Upbit websocket, subscribes to the ticker
// stream for the configured markets, and invokes the handler on each
// message. It reconnects with backoff on disconnect.
type UpbitTickerFeed struct {
	wsURL     string
	markets   []string
	onTicker  TickerHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewUpbitTickerFeed creates a feed for the given markets.
//
// wsURL is the websocket endpoint, e.g. "wss://api.upbit.com/websocket/v1".
func NewUpbitTickerFeed(wsURL string, markets []string, onTicker TickerHandler, logger *slog.Logger) *UpbitTickerFeed {
	return &UpbitTickerFeed{
		wsURL:    wsURL,
		markets:  markets,
		onTicker: onTicker,
		logger:   logger.With(slog.String("component", "upbit_ticker_feed")),
		done:     make(chan struct{}),
	}
}

// Run connects, subscribes, and reads until ctx is cancelled. It reconnects
// with a fixed backoff on disconnect.
func (f *UpbitTickerFeed) Run(ctx context.Context) error {
	if len(f.markets) == 0 {
		f.logger.Info("no markets to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("upbit ws disconnected, reconnecting",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// tickerMessage mirrors the Upbit websocket ticker payload.
type tickerMessage struct {
	Type           string  `json:"type"`
	Code           string  `json:"code"`
	TradePrice     float64 `json:"trade_price"`
	TradeTimestamp int64   `json:"trade_timestamp"` // Unix milliseconds
}

func (f *UpbitTickerFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("upbit ws: dial: %w", err)
	}
	defer conn.Close()

	// Upbit takes the subscription as a JSON array: a ticket frame followed
	// by one frame per subscribed type.
	sub := []any{
		map[string]string{"ticket": uuid.New().String()},
		map[string]any{"type": "ticker", "codes": f.markets},
		map[string]string{"format": "DEFAULT"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("upbit ws: subscribe: %w", err)
	}
	f.logger.Info("upbit ws subscribed", slog.Int("markets", len(f.markets)))

	// Close the connection when ctx ends so ReadMessage unblocks.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("upbit ws: read: %w", err)
		}

		var msg tickerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Warn("upbit ws: bad message", slog.String("error", err.Error()))
			continue
		}
		if msg.Type != "ticker" || msg.Code == "" {
			continue
		}

		if f.onTicker != nil {
			f.onTicker(ctx, domain.Ticker{
				Market:     msg.Code,
				TradePrice: decimal.NewFromFloat(msg.TradePrice),
				Ts:         time.UnixMilli(msg.TradeTimestamp),
			})
		}
	}
}

// Close stops the feed.
func (f *UpbitTickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

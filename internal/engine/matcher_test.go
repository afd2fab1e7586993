package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/money"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), "want %s, got %s", want, got)
}

func newTestMatcher(st *memState, books domain.SnapshotProvider, tickers domain.TickerSource) *Matcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(
		Config{Interval: time.Hour, SettlementCurrency: "KRW"},
		money.Default(),
		st,
		memOrders{st},
		st,
		memFills{st},
		books,
		tickers,
		nil,
		nil,
		logger,
	)
}

func pendingBuy(id, account, market, limit, qty string) domain.Order {
	return domain.Order{
		ID:           id,
		AccountID:    account,
		Market:       market,
		Side:         domain.OrderSideBuy,
		LimitPrice:   d(limit),
		OriginalQty:  d(qty),
		RemainingQty: d(qty),
		CreatedAt:    time.Now().UTC(),
	}
}

func TestAttemptFillsAcrossLevels(t *testing.T) {
	st := newMemState()
	// 30000 reserved for the order out of 10000000 total.
	st.setBalance("acct", "KRW", d("10000000"), d("9970000"))
	o := pendingBuy("o1", "acct", "KRW-BTC", "10000", "3")
	require.NoError(t, st.InsertPending(context.Background(), o))

	books := staticBooks{snap: domain.OrderbookSnapshot{
		Market: "KRW-BTC",
		Asks: []domain.PriceLevel{
			{Price: d("9000"), Size: d("1")},
			{Price: d("9500"), Size: d("2")},
			{Price: d("10500"), Size: d("5")},
		},
	}}

	m := newTestMatcher(st, books, staticTickers{})
	require.NoError(t, m.attempt(context.Background(), o))

	// Two fills: 1 at 9000 and 2 at 9500, cumulative cost 28000.
	fills := st.fillList()
	require.Len(t, fills, 2)
	assertDec(t, "9000", fills[0].Price)
	assertDec(t, "1", fills[0].Quantity)
	assertDec(t, "9500", fills[1].Price)
	assertDec(t, "2", fills[1].Quantity)

	h := st.holding("acct", "BTC")
	assertDec(t, "28000", h.CumulativeCost)
	assertDec(t, "3", h.Quantity)
	assertDec(t, "3", h.Available)

	// Fully filled orders leave the pending set.
	_, ok := st.order("o1")
	assert.False(t, ok)

	// Spread refunds returned the unspent part of the reservation, so
	// available catches up with total once nothing is pending.
	b := st.balance("acct", "KRW")
	assertDec(t, "9972000", b.Total)
	assertDec(t, "9972000", b.Available)
}

func TestAttemptStopsAtCrossedLevel(t *testing.T) {
	st := newMemState()
	st.setBalance("acct", "KRW", d("100000"), d("72400"))
	o := pendingBuy("o1", "acct", "KRW-BTC", "9200", "3")
	require.NoError(t, st.InsertPending(context.Background(), o))

	books := staticBooks{snap: domain.OrderbookSnapshot{
		Market: "KRW-BTC",
		Asks: []domain.PriceLevel{
			{Price: d("9000"), Size: d("0.5")},
			{Price: d("9500"), Size: d("5")},
		},
	}}

	m := newTestMatcher(st, books, staticTickers{})
	require.NoError(t, m.attempt(context.Background(), o))

	// Only the level inside the limit filled; the rest of the book is
	// unreachable this cycle.
	require.Len(t, st.fillList(), 1)
	cur, ok := st.order("o1")
	require.True(t, ok)
	assertDec(t, "2.5", cur.RemainingQty)
}

func TestAttemptNeverOverfills(t *testing.T) {
	st := newMemState()
	st.setBalance("acct", "KRW", d("100000"), d("90000"))
	o := pendingBuy("o1", "acct", "KRW-BTC", "10000", "1")
	require.NoError(t, st.InsertPending(context.Background(), o))

	books := staticBooks{snap: domain.OrderbookSnapshot{
		Market: "KRW-BTC",
		Asks:   []domain.PriceLevel{{Price: d("9000"), Size: d("10")}},
	}}

	m := newTestMatcher(st, books, staticTickers{})
	require.NoError(t, m.attempt(context.Background(), o))

	fills := st.fillList()
	require.Len(t, fills, 1)
	assertDec(t, "1", fills[0].Quantity)
	assertDec(t, "1", st.holding("acct", "BTC").Quantity)
}

func TestAttemptSellFill(t *testing.T) {
	st := newMemState()
	st.setBalance("acct", "KRW", d("0"), d("0"))
	// 2 BTC locked for the order, acquired at an average cost of 8000.
	st.setHolding("acct", "BTC", d("16000"), d("2"), d("0"))
	o := domain.Order{
		ID:           "o1",
		AccountID:    "acct",
		Market:       "KRW-BTC",
		Side:         domain.OrderSideSell,
		LimitPrice:   d("9000"),
		OriginalQty:  d("2"),
		RemainingQty: d("2"),
	}
	require.NoError(t, st.InsertPending(context.Background(), o))

	books := staticBooks{snap: domain.OrderbookSnapshot{
		Market: "KRW-BTC",
		Bids: []domain.PriceLevel{
			{Price: d("9500"), Size: d("1.5")},
			{Price: d("8900"), Size: d("5")},
		},
	}}

	m := newTestMatcher(st, books, staticTickers{})
	require.NoError(t, m.attempt(context.Background(), o))

	// 1.5 sold at 9500; the 8900 bid is below the limit and stops the loop.
	fills := st.fillList()
	require.Len(t, fills, 1)
	assertDec(t, "9500", fills[0].Price)
	assertDec(t, "1.5", fills[0].Quantity)

	h := st.holding("acct", "BTC")
	assertDec(t, "0.5", h.Quantity)
	assertDec(t, "4000", h.CumulativeCost) // 16000 - 8000*1.5
	assertDec(t, "0", h.Available)         // remainder stays locked

	b := st.balance("acct", "KRW")
	assertDec(t, "14250", b.Total)
	assertDec(t, "14250", b.Available)

	cur, ok := st.order("o1")
	require.True(t, ok)
	assertDec(t, "0.5", cur.RemainingQty)
}

func TestAttemptDustRemainderTerminates(t *testing.T) {
	st := newMemState()
	st.setBalance("acct", "KRW", d("100000"), d("85000"))
	o := pendingBuy("o1", "acct", "KRW-BTC", "10000", "1.000000001")
	require.NoError(t, st.InsertPending(context.Background(), o))

	books := staticBooks{snap: domain.OrderbookSnapshot{
		Market: "KRW-BTC",
		Asks:   []domain.PriceLevel{{Price: d("9000"), Size: d("1")}},
	}}

	m := newTestMatcher(st, books, staticTickers{})
	require.NoError(t, m.attempt(context.Background(), o))

	// The sub-epsilon remainder is never persisted as pending.
	_, ok := st.order("o1")
	assert.False(t, ok)

	require.Len(t, st.fillList(), 1)
	assertDec(t, "1", st.fillList()[0].Quantity)

	// The reservation for the dust residual is released with the rest.
	b := st.balance("acct", "KRW")
	// 85000 + spread refund 1000 + residual 10000*0.000000001
	assertDec(t, "86000.00001", b.Available)
	assertDec(t, "91000", b.Total)
}

func TestAttemptConvertsQuoteCurrency(t *testing.T) {
	st := newMemState()
	st.setBalance("acct", "KRW", d("100000"), d("99400"))
	// BTC-quoted market: limits and fills settle through the KRW-BTC price.
	o := pendingBuy("o1", "acct", "BTC-ETH", "600", "1")
	require.NoError(t, st.InsertPending(context.Background(), o))

	books := staticBooks{snap: domain.OrderbookSnapshot{
		Market: "BTC-ETH",
		Asks:   []domain.PriceLevel{{Price: d("0.05"), Size: d("2")}},
	}}
	tickers := staticTickers{prices: map[string]decimal.Decimal{
		"KRW-BTC": d("10000"),
	}}

	m := newTestMatcher(st, books, tickers)
	require.NoError(t, m.attempt(context.Background(), o))

	fills := st.fillList()
	require.Len(t, fills, 1)
	assertDec(t, "500", fills[0].Price) // 0.05 BTC at 10000 KRW/BTC

	h := st.holding("acct", "ETH")
	assertDec(t, "500", h.CumulativeCost)
	assertDec(t, "1", h.Quantity)
}

func TestAttemptFailsWithoutReferencePrice(t *testing.T) {
	st := newMemState()
	st.setBalance("acct", "KRW", d("100000"), d("99400"))
	o := pendingBuy("o1", "acct", "BTC-ETH", "600", "1")
	require.NoError(t, st.InsertPending(context.Background(), o))

	books := staticBooks{snap: domain.OrderbookSnapshot{
		Market: "BTC-ETH",
		Asks:   []domain.PriceLevel{{Price: d("0.05"), Size: d("2")}},
	}}

	m := newTestMatcher(st, books, staticTickers{})
	err := m.attempt(context.Background(), o)
	require.Error(t, err)

	// Nothing moved: the order stays pending for the next cycle.
	assert.Empty(t, st.fillList())
	cur, ok := st.order("o1")
	require.True(t, ok)
	assertDec(t, "1", cur.RemainingQty)
}

func TestAttemptSnapshotFetchFailure(t *testing.T) {
	st := newMemState()
	st.setBalance("acct", "KRW", d("100000"), d("90000"))
	o := pendingBuy("o1", "acct", "KRW-BTC", "10000", "1")
	require.NoError(t, st.InsertPending(context.Background(), o))

	m := newTestMatcher(st, staticBooks{err: errors.New("upstream down")}, staticTickers{})
	require.Error(t, m.attempt(context.Background(), o))
	assert.Empty(t, st.fillList())
}

func TestConcurrentAttemptsAdvanceOnce(t *testing.T) {
	st := newMemState()
	st.setBalance("acct", "KRW", d("100000"), d("90000"))
	o := pendingBuy("o1", "acct", "KRW-BTC", "10000", "1")
	require.NoError(t, st.InsertPending(context.Background(), o))

	books := staticBooks{snap: domain.OrderbookSnapshot{
		Market: "KRW-BTC",
		Asks:   []domain.PriceLevel{{Price: d("9000"), Size: d("5")}},
	}}
	m := newTestMatcher(st, books, staticTickers{})

	// Two racing attempts for the same order: one fills, the other finds
	// the row gone and stops quietly.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.attempt(context.Background(), o)
		}(i)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	require.Len(t, st.fillList(), 1)
	assertDec(t, "1", st.holding("acct", "BTC").Quantity)
	b := st.balance("acct", "KRW")
	assertDec(t, "91000", b.Total)
}

func TestCycleHoldsLockUntilAttemptsFinish(t *testing.T) {
	st := newMemState()
	st.setBalance("acct", "KRW", d("100000"), d("91000"))
	o := pendingBuy("o1", "acct", "KRW-BTC", "9000", "1")
	require.NoError(t, st.InsertPending(context.Background(), o))

	books := &gatedBooks{
		snap: domain.OrderbookSnapshot{
			Market: "KRW-BTC",
			Asks:   []domain.PriceLevel{{Price: d("9000"), Size: d("1")}},
		},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	locks := &recordingLocks{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(
		Config{Interval: time.Hour, SettlementCurrency: "KRW", CycleLockTTL: time.Minute},
		money.Default(),
		st,
		memOrders{st},
		st,
		memFills{st},
		books,
		staticTickers{},
		nil,
		locks,
		logger,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.cycle(context.Background(), domain.OrderSideBuy)
	}()

	select {
	case <-books.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never requested a snapshot")
	}

	// The attempt is in flight; the replica lock must still be held.
	assert.False(t, locks.released.Load())

	close(books.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not return")
	}

	assert.True(t, locks.released.Load())
	require.Len(t, st.fillList(), 1)
}

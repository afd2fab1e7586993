package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/dispatcher"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/money"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), "want %s, got %s", want, got)
}

// svcState is an in-memory storage fake covering what the order service
// touches. Writes before a failing step stay applied; tests only drive
// paths that fail before writing.
type svcState struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	orders   map[string]domain.Order
	balances map[string]domain.Balance      // accountID|currency
	holdings map[string]domain.AssetHolding // accountID|symbol
}

func newSvcState() *svcState {
	return &svcState{
		accounts: make(map[string]domain.Account),
		orders:   make(map[string]domain.Order),
		balances: make(map[string]domain.Balance),
		holdings: make(map[string]domain.AssetHolding),
	}
}

func key(a, b string) string { return a + "|" + b }

func (s *svcState) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *svcState) Create(_ context.Context, acct domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = acct
	return nil
}

func (s *svcState) Get(_ context.Context, id string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (s *svcState) InsertPending(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *svcState) LockAndLoad(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderVanished
	}
	return o, nil
}

func (s *svcState) UpdateRemaining(_ context.Context, id string, remaining decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderVanished
	}
	o.RemainingQty = remaining
	s.orders[id] = o
	return nil
}

func (s *svcState) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
	return nil
}

func (s *svcState) ListPending(_ context.Context, side domain.OrderSide) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *svcState) ListByAccount(_ context.Context, accountID string, _ domain.ListOpts) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.AccountID == accountID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *svcState) GetBalance(_ context.Context, accountID, currency string) (domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[key(accountID, currency)]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *svcState) ListBalances(_ context.Context, accountID string) ([]domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Balance
	for _, b := range s.balances {
		if b.AccountID == accountID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *svcState) CreateBalance(_ context.Context, accountID, currency string, total, available decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(accountID, currency)
	if _, ok := s.balances[k]; ok {
		return nil
	}
	s.balances[k] = domain.Balance{
		AccountID: accountID,
		Currency:  currency,
		Total:     total,
		Available: available,
	}
	return nil
}

func (s *svcState) Reserve(_ context.Context, accountID, currency string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(accountID, currency)
	b, ok := s.balances[k]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if b.Available.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	b.Available = b.Available.Sub(amount)
	s.balances[k] = b
	return nil
}

func (s *svcState) AdjustAvailable(_ context.Context, accountID, currency string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(accountID, currency)
	b, ok := s.balances[k]
	if !ok {
		return domain.ErrNotFound
	}
	b.Available = b.Available.Add(delta)
	s.balances[k] = b
	return nil
}

func (s *svcState) AdjustTotal(_ context.Context, accountID, currency string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(accountID, currency)
	b, ok := s.balances[k]
	if !ok {
		return domain.ErrNotFound
	}
	b.Total = b.Total.Add(delta)
	s.balances[k] = b
	return nil
}

func (s *svcState) GetAssetHolding(_ context.Context, accountID, symbol string) (domain.AssetHolding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holdings[key(accountID, symbol)]
	if !ok {
		return domain.AssetHolding{}, domain.ErrNotFound
	}
	return h, nil
}

func (s *svcState) ListAssetHoldings(_ context.Context, accountID string) ([]domain.AssetHolding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AssetHolding
	for _, h := range s.holdings {
		if h.AccountID == accountID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *svcState) UpsertAssetHolding(_ context.Context, accountID, symbol string, costDelta, qtyDelta, availDelta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(accountID, symbol)
	h := s.holdings[k]
	h.AccountID, h.Symbol = accountID, symbol
	h.CumulativeCost = h.CumulativeCost.Add(costDelta)
	h.Quantity = h.Quantity.Add(qtyDelta)
	h.Available = h.Available.Add(availDelta)
	s.holdings[k] = h
	return nil
}

func (s *svcState) LockAssetQty(_ context.Context, accountID, symbol string, qty decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(accountID, symbol)
	h, ok := s.holdings[k]
	if !ok || h.Available.LessThan(qty) {
		return domain.ErrInsufficientFunds
	}
	h.Available = h.Available.Sub(qty)
	s.holdings[k] = h
	return nil
}

type staticTickers struct {
	prices map[string]decimal.Decimal
}

func (t staticTickers) LastPrice(_ context.Context, market string) (decimal.Decimal, error) {
	p, ok := t.prices[market]
	if !ok {
		return decimal.Decimal{}, domain.ErrNotFound
	}
	return p, nil
}

func newTestService(st *svcState, tickers domain.TickerSource, pool Dispatcher) *OrderService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrderService(
		Config{SettlementCurrency: "KRW", MinNotional: d("5000")},
		money.Default(),
		st, st, st, st,
		tickers,
		nil, nil, pool,
		logger,
	)
}

func seededAccount(st *svcState, total, available string) {
	st.accounts["acct"] = domain.Account{ID: "acct", CreatedAt: time.Now().UTC()}
	st.balances[key("acct", "KRW")] = domain.Balance{
		AccountID: "acct",
		Currency:  "KRW",
		Total:     d(total),
		Available: d(available),
	}
}

func TestPlaceBuyReservesFunds(t *testing.T) {
	st := newSvcState()
	seededAccount(st, "100000", "100000")
	svc := newTestService(st, staticTickers{}, nil)

	order, err := svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "acct",
		Market:    "KRW-BTC",
		Side:      domain.OrderSideBuy,
		Price:     d("9000"),
		Quantity:  d("2"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assertDec(t, "9000", order.LimitPrice)
	assertDec(t, "2", order.RemainingQty)

	// 18000 moved from available into the reservation; total untouched.
	b := st.balances[key("acct", "KRW")]
	assertDec(t, "100000", b.Total)
	assertDec(t, "82000", b.Available)

	_, ok := st.orders[order.ID]
	assert.True(t, ok)
}

func TestPlaceRejectsBelowMinNotional(t *testing.T) {
	st := newSvcState()
	seededAccount(st, "100000", "100000")
	svc := newTestService(st, staticTickers{}, nil)

	_, err := svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "acct",
		Market:    "KRW-BTC",
		Side:      domain.OrderSideBuy,
		Price:     d("100"),
		Quantity:  d("1"),
	})
	assert.ErrorIs(t, err, domain.ErrBelowMinNotional)
	assert.Empty(t, st.orders)
	assertDec(t, "100000", st.balances[key("acct", "KRW")].Available)
}

func TestPlaceRejectsInsufficientFunds(t *testing.T) {
	st := newSvcState()
	seededAccount(st, "100000", "1000")
	svc := newTestService(st, staticTickers{}, nil)

	_, err := svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "acct",
		Market:    "KRW-BTC",
		Side:      domain.OrderSideBuy,
		Price:     d("9000"),
		Quantity:  d("2"),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Empty(t, st.orders)
}

func TestPlaceUnknownAccount(t *testing.T) {
	st := newSvcState()
	svc := newTestService(st, staticTickers{}, nil)

	_, err := svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "nobody",
		Market:    "KRW-BTC",
		Side:      domain.OrderSideBuy,
		Price:     d("9000"),
		Quantity:  d("2"),
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestPlaceRejectsInvalidInput(t *testing.T) {
	st := newSvcState()
	seededAccount(st, "100000", "100000")
	svc := newTestService(st, staticTickers{}, nil)

	_, err := svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "acct",
		Market:    "KRW-BTC",
		Side:      domain.OrderSide("hold"),
		Price:     d("9000"),
		Quantity:  d("1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "acct",
		Market:    "KRW-BTC",
		Side:      domain.OrderSideBuy,
		Price:     d("0.000000001"),
		Quantity:  d("1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "acct",
		Market:    "KRW-BTC",
		Side:      domain.OrderSideBuy,
		Price:     d("9000"),
		Quantity:  d("-1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestPlaceSellLocksQuantity(t *testing.T) {
	st := newSvcState()
	seededAccount(st, "0", "0")
	st.holdings[key("acct", "BTC")] = domain.AssetHolding{
		AccountID: "acct",
		Symbol:    "BTC",
		Quantity:  d("5"),
		Available: d("5"),
	}
	svc := newTestService(st, staticTickers{}, nil)

	_, err := svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "acct",
		Market:    "KRW-BTC",
		Side:      domain.OrderSideSell,
		Price:     d("9000"),
		Quantity:  d("2"),
	})
	require.NoError(t, err)

	h := st.holdings[key("acct", "BTC")]
	assertDec(t, "5", h.Quantity)
	assertDec(t, "3", h.Available)
}

func TestPlaceConvertsQuoteCurrency(t *testing.T) {
	st := newSvcState()
	seededAccount(st, "1000000", "1000000")
	tickers := staticTickers{prices: map[string]decimal.Decimal{
		"KRW-BTC": d("10000000"),
	}}
	svc := newTestService(st, tickers, nil)

	order, err := svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "acct",
		Market:    "BTC-ETH",
		Side:      domain.OrderSideBuy,
		Price:     d("0.05"),
		Quantity:  d("1"),
	})
	require.NoError(t, err)

	// 0.05 BTC at 10000000 KRW/BTC.
	assertDec(t, "500000", order.LimitPrice)
	assertDec(t, "500000", d("1000000").Sub(st.balances[key("acct", "KRW")].Available))
}

func TestPlaceWithoutReferencePrice(t *testing.T) {
	st := newSvcState()
	seededAccount(st, "1000000", "1000000")
	svc := newTestService(st, staticTickers{}, nil)

	_, err := svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "acct",
		Market:    "BTC-ETH",
		Side:      domain.OrderSideBuy,
		Price:     d("0.05"),
		Quantity:  d("1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestPlaceThroughDispatcher(t *testing.T) {
	st := newSvcState()
	seededAccount(st, "100000", "100000")
	pool := dispatcher.New(2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer pool.Close()
	svc := newTestService(st, staticTickers{}, pool)

	order, err := svc.Place(context.Background(), PlaceOrderRequest{
		AccountID: "acct",
		Market:    "KRW-BTC",
		Side:      domain.OrderSideBuy,
		Price:     d("9000"),
		Quantity:  d("1"),
	})
	require.NoError(t, err)

	_, ok := st.orders[order.ID]
	assert.True(t, ok)
	assertDec(t, "91000", st.balances[key("acct", "KRW")].Available)
}

func TestCancelBuyReleasesReservation(t *testing.T) {
	st := newSvcState()
	seededAccount(st, "100000", "82000")
	st.orders["o1"] = domain.Order{
		ID:           "o1",
		AccountID:    "acct",
		Market:       "KRW-BTC",
		Side:         domain.OrderSideBuy,
		LimitPrice:   d("9000"),
		OriginalQty:  d("2"),
		RemainingQty: d("1.5"),
	}
	svc := newTestService(st, staticTickers{}, nil)

	require.NoError(t, svc.Cancel(context.Background(), "acct", "o1"))

	_, ok := st.orders["o1"]
	assert.False(t, ok)
	// The remaining reservation, 9000 x 1.5, comes back.
	assertDec(t, "95500", st.balances[key("acct", "KRW")].Available)
	assertDec(t, "100000", st.balances[key("acct", "KRW")].Total)
}

func TestCancelSellReleasesLock(t *testing.T) {
	st := newSvcState()
	seededAccount(st, "0", "0")
	st.holdings[key("acct", "BTC")] = domain.AssetHolding{
		AccountID: "acct",
		Symbol:    "BTC",
		Quantity:  d("5"),
		Available: d("3"),
	}
	st.orders["o1"] = domain.Order{
		ID:           "o1",
		AccountID:    "acct",
		Market:       "KRW-BTC",
		Side:         domain.OrderSideSell,
		LimitPrice:   d("9000"),
		OriginalQty:  d("2"),
		RemainingQty: d("2"),
	}
	svc := newTestService(st, staticTickers{}, nil)

	require.NoError(t, svc.Cancel(context.Background(), "acct", "o1"))

	h := st.holdings[key("acct", "BTC")]
	assertDec(t, "5", h.Quantity)
	assertDec(t, "5", h.Available)
}

func TestCancelWrongAccount(t *testing.T) {
	st := newSvcState()
	st.orders["o1"] = domain.Order{
		ID:        "o1",
		AccountID: "acct",
		Side:      domain.OrderSideBuy,
	}
	svc := newTestService(st, staticTickers{}, nil)

	err := svc.Cancel(context.Background(), "other", "o1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, ok := st.orders["o1"]
	assert.True(t, ok)
}

func TestCancelVanishedOrder(t *testing.T) {
	st := newSvcState()
	svc := newTestService(st, staticTickers{}, nil)

	err := svc.Cancel(context.Background(), "acct", "gone")
	assert.ErrorIs(t, err, domain.ErrOrderVanished)
}

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// memState is an in-memory stand-in for the storage layer. WithinTx
// serializes callers the way row locks do in PostgreSQL: a transaction
// observing an order sees every write of the transaction before it.
// Rollback is not modelled; tests only drive paths that fail before
// writing.
type memState struct {
	txMu sync.Mutex

	mu       sync.Mutex
	orders   map[string]domain.Order
	balances map[string]domain.Balance     // accountID|currency
	holdings map[string]domain.AssetHolding // accountID|symbol
	fills    []domain.Fill
}

func newMemState() *memState {
	return &memState{
		orders:   make(map[string]domain.Order),
		balances: make(map[string]domain.Balance),
		holdings: make(map[string]domain.AssetHolding),
	}
}

func key(a, b string) string { return a + "|" + b }

func (s *memState) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

// --- OrderStore ---

func (s *memState) InsertPending(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *memState) LockAndLoad(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderVanished
	}
	return o, nil
}

func (s *memState) UpdateRemaining(_ context.Context, id string, remaining decimal.Decimal) error {
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

func (s *memState) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
	return nil
}

func (s *memState) ListPending(_ context.Context, side domain.OrderSide) ([]domain.Order, error) {
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

// memOrders and memFills expose the two ListByAccount variants, which share
// a name across the order and fill store interfaces.
type memOrders struct{ *memState }

func (s memOrders) ListByAccount(_ context.Context, accountID string, _ domain.ListOpts) ([]domain.Order, error) {
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

type memFills struct{ *memState }

func (s memFills) ListByAccount(_ context.Context, accountID string, _ domain.ListOpts) ([]domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Fill
	for _, f := range s.fills {
		if f.AccountID == accountID {
			out = append(out, f)
		}
	}
	return out, nil
}

// --- BalanceLedger ---

func (s *memState) setBalance(accountID, currency string, total, available decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[key(accountID, currency)] = domain.Balance{
		AccountID: accountID,
		Currency:  currency,
		Total:     total,
		Available: available,
	}
}

func (s *memState) setHolding(accountID, symbol string, cost, qty, available decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings[key(accountID, symbol)] = domain.AssetHolding{
		AccountID:      accountID,
		Symbol:         symbol,
		CumulativeCost: cost,
		Quantity:       qty,
		Available:      available,
	}
}

func (s *memState) GetBalance(_ context.Context, accountID, currency string) (domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[key(accountID, currency)]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *memState) ListBalances(_ context.Context, accountID string) ([]domain.Balance, error) {
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

func (s *memState) CreateBalance(_ context.Context, accountID, currency string, total, available decimal.Decimal) error {
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

// Reserve and the adjust methods mirror the SQL store: they UPDATE an
// existing row and fail when it is absent.
func (s *memState) Reserve(_ context.Context, accountID, currency string, amount decimal.Decimal) error {
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

func (s *memState) AdjustAvailable(_ context.Context, accountID, currency string, delta decimal.Decimal) error {
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

func (s *memState) AdjustTotal(_ context.Context, accountID, currency string, delta decimal.Decimal) error {
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

func (s *memState) GetAssetHolding(_ context.Context, accountID, symbol string) (domain.AssetHolding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holdings[key(accountID, symbol)]
	if !ok {
		return domain.AssetHolding{}, domain.ErrNotFound
	}
	return h, nil
}

func (s *memState) ListAssetHoldings(_ context.Context, accountID string) ([]domain.AssetHolding, error) {
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

func (s *memState) UpsertAssetHolding(_ context.Context, accountID, symbol string, costDelta, qtyDelta, availDelta decimal.Decimal) error {
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

func (s *memState) LockAssetQty(_ context.Context, accountID, symbol string, qty decimal.Decimal) error {
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

// --- FillStore ---

func (s *memState) Append(_ context.Context, f domain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills = append(s.fills, f)
	return nil
}

func (s *memState) fillList() []domain.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Fill(nil), s.fills...)
}

func (s *memState) ListBetween(_ context.Context, from, to time.Time) ([]domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Fill
	for _, f := range s.fills {
		if !f.Ts.Before(from) && f.Ts.Before(to) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memState) order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok
}

func (s *memState) balance(accountID, currency string) domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[key(accountID, currency)]
}

func (s *memState) holding(accountID, symbol string) domain.AssetHolding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdings[key(accountID, symbol)]
}

// --- Market data fakes ---

type staticBooks struct {
	snap domain.OrderbookSnapshot
	err  error
}

func (b staticBooks) GetOrderBook(context.Context, string) (domain.OrderbookSnapshot, error) {
	if b.err != nil {
		return domain.OrderbookSnapshot{}, b.err
	}
	return b.snap, nil
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

// gatedBooks signals on entered when a snapshot is requested and then blocks
// until release is closed, letting a test freeze a cycle mid-attempt.
type gatedBooks struct {
	snap    domain.OrderbookSnapshot
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *gatedBooks) GetOrderBook(context.Context, string) (domain.OrderbookSnapshot, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.snap, nil
}

// recordingLocks hands out locks unconditionally and remembers whether the
// unlock function has run.
type recordingLocks struct {
	released atomic.Bool
}

func (l *recordingLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() { l.released.Store(true) }, nil
}

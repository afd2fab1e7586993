package engine

import "sync"

// inflightGuard is a concurrent set keyed by order id with test-and-set
// semantics. A matching cycle skips any order whose previous attempt is
// still running; the guard is released unconditionally when the attempt
// finishes, including on error, so a failed attempt can never leak it.
type inflightGuard struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{set: make(map[string]struct{})}
}

// TryAcquire inserts id if absent. Returns false when an attempt for this
// order is already in flight; callers skip, never wait.
func (g *inflightGuard) TryAcquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.set[id]; ok {
		return false
	}
	g.set[id] = struct{}{}
	return true
}

// Release removes id from the set. Safe to call for an id that was never
// acquired.
func (g *inflightGuard) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.set, id)
}

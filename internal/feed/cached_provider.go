package feed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// CachedProvider wraps a SnapshotProvider with the orderbook cache so the
// buy and sell matching loops within one cycle share a single upstream
// fetch per market. Cache failures fall through to the upstream provider;
// the cache is an optimization, never a correctness dependency.
type CachedProvider struct {
	upstream domain.SnapshotProvider
	cache    domain.OrderbookCache
	logger   *slog.Logger
}

// NewCachedProvider creates a CachedProvider. cache may be nil, in which
// case every call goes upstream.
func NewCachedProvider(upstream domain.SnapshotProvider, cache domain.OrderbookCache, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		cache:    cache,
		logger:   logger.With(slog.String("component", "orderbook_provider")),
	}
}

// GetOrderBook returns the cached snapshot when fresh, otherwise fetches
// upstream and populates the cache.
func (p *CachedProvider) GetOrderBook(ctx context.Context, market string) (domain.OrderbookSnapshot, error) {
	if p.cache != nil {
		snap, err := p.cache.GetSnapshot(ctx, market)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.WarnContext(ctx, "orderbook cache read failed",
				slog.String("market", market),
				slog.String("error", err.Error()),
			)
		}
	}

	snap, err := p.upstream.GetOrderBook(ctx, market)
	if err != nil {
		return domain.OrderbookSnapshot{}, err
	}

	if p.cache != nil {
		if err := p.cache.SetSnapshot(ctx, snap); err != nil {
			p.logger.WarnContext(ctx, "orderbook cache write failed",
				slog.String("market", market),
				slog.String("error", err.Error()),
			)
		}
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotProvider = (*CachedProvider)(nil)

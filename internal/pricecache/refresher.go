package pricecache

import (
	"context"
	"log/slog"
	"time"

	"github.com/papertrade/trading-engine/internal/feed"
	"github.com/papertrade/trading-engine/internal/metrics"
)

// Broadcaster fans a snapshot out to connected observers.
// Pass nil if broadcasting is not needed.
type Broadcaster interface {
	Publish(kind string, payload any)
}

// Refresher polls the market-data feed on a fixed interval and merges
// the returned quotes into the cache. Refreshes are idempotent, so a
// failed cycle is simply retried on the next tick.
type Refresher struct {
	cache    Cache
	src      feed.Source
	symbols  []string
	interval time.Duration
	sink     Broadcaster
}

// NewRefresher creates a refresher for a fixed symbol universe.
func NewRefresher(cache Cache, src feed.Source, symbols []string, interval time.Duration, sink Broadcaster) *Refresher {
	return &Refresher{
		cache:    cache,
		src:      src,
		symbols:  symbols,
		interval: interval,
		sink:     sink,
	}
}

// Run refreshes once immediately, then on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.RefreshAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll fetches the whole symbol universe in one batch call and
// returns the number of updated entries. A feed failure reports zero
// updates and leaves the existing cache untouched: stale-but-available
// beats unavailable.
func (r *Refresher) RefreshAll(ctx context.Context) int {
	quotes, err := r.src.Quotes(ctx, r.symbols)
	if err != nil {
		metrics.PriceRefreshFailures.Inc()
		slog.Error("price refresh failed", "err", err)
		return 0
	}

	updated, err := r.cache.Update(ctx, quotes)
	if err != nil {
		metrics.PriceRefreshFailures.Inc()
		slog.Error("price cache update failed", "err", err)
		return 0
	}
	metrics.PriceRefreshUpdates.Add(float64(updated))
	slog.Info("prices refreshed", "updated", updated, "requested", len(r.symbols))

	if updated > 0 && r.sink != nil {
		if table, err := r.cache.All(ctx); err == nil {
			r.sink.Publish("prices", table)
		}
	}
	return updated
}

package leaderboard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/metrics"
	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/pricecache"
	"github.com/papertrade/trading-engine/internal/store"
)

// Pipeline periodically rebuilds the ranked snapshot from balances,
// positions and current prices. It alternates between idle and
// recomputing: a timer drives the cycle and Trigger requests one on
// demand. It holds no lock shared with order execution; the snapshot
// reads tolerate eventual consistency by design.
type Pipeline struct {
	store    store.Store
	cache    pricecache.Cache
	index    Index
	sink     pricecache.Broadcaster
	interval time.Duration
	topK     int
	trigger  chan struct{}
}

// NewPipeline creates a recomputation pipeline. sink may be nil.
func NewPipeline(st store.Store, cache pricecache.Cache, index Index, sink pricecache.Broadcaster, interval time.Duration, topK int) *Pipeline {
	return &Pipeline{
		store:    st,
		cache:    cache,
		index:    index,
		sink:     sink,
		interval: interval,
		topK:     topK,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate recomputation. Non-blocking; a cycle
// already pending absorbs the request.
func (p *Pipeline) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run recomputes once at startup, then on every tick or trigger until
// ctx is done. Collaborator errors are logged and the pipeline simply
// runs again on its next cycle; recomputation is idempotent.
func (p *Pipeline) Run(ctx context.Context) {
	if err := p.Recompute(ctx); err != nil {
		slog.Error("leaderboard recompute failed", "err", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.trigger:
		}
		if err := p.Recompute(ctx); err != nil {
			metrics.LeaderboardRecomputes.WithLabelValues("error").Inc()
			slog.Error("leaderboard recompute failed", "err", err)
			continue
		}
		metrics.LeaderboardRecomputes.WithLabelValues("ok").Inc()
	}
}

// Recompute rebuilds the full ranking and atomically replaces the
// index. net worth = balance + Σ quantity × current price; a holding
// without a cached price contributes zero rather than failing the
// whole cycle.
func (p *Pipeline) Recompute(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.LeaderboardRecomputeDuration.Observe(time.Since(start).Seconds())
	}()

	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	positions, err := p.store.ListPositions(ctx)
	if err != nil {
		return err
	}

	bySymbol := map[string]struct{}{}
	byUser := make(map[int64][]model.Position)
	for _, pos := range positions {
		byUser[pos.UserID] = append(byUser[pos.UserID], pos)
		bySymbol[pos.Symbol] = struct{}{}
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	// One consistent price read for the whole cycle.
	prices, err := p.cache.Prices(ctx, symbols)
	if err != nil {
		return err
	}

	entries := make([]model.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entry := model.LeaderboardEntry{
			UserID:   u.ID,
			Username: u.Username,
			NetWorth: u.Balance,
			Holdings: []model.Holding{},
		}
		for _, pos := range byUser[u.ID] {
			price := prices[pos.Symbol] // zero when the price is missing
			value := price.Mul(decimal.NewFromInt(pos.Quantity))
			entry.NetWorth = entry.NetWorth.Add(value)
			entry.Holdings = append(entry.Holdings, model.Holding{
				Symbol:       pos.Symbol,
				Quantity:     pos.Quantity,
				AverageCost:  pos.AverageCost,
				CurrentPrice: price,
				Value:        value,
			})
		}
		entries = append(entries, entry)
	}

	// Descending net worth; ties broken by ascending user ID so a
	// rerun over unchanged inputs yields an identical ordering.
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].NetWorth.Equal(entries[j].NetWorth) {
			return entries[i].NetWorth.GreaterThan(entries[j].NetWorth)
		}
		return entries[i].UserID < entries[j].UserID
	})

	if err := p.index.Replace(ctx, entries); err != nil {
		return err
	}

	slog.Info("leaderboard recomputed", "users", len(users), "took", time.Since(start).String())

	if p.sink != nil {
		top := entries
		if len(top) > p.topK {
			top = top[:p.topK]
		}
		p.sink.Publish("leaderboard", top)
	}
	return nil
}

// Package leaderboard owns the ranked net-worth snapshot: a disposable
// derived view, fully rebuilt on every recomputation cycle and replaced
// atomically so readers never observe a half-built ranking.
package leaderboard

import (
	"context"
	"sync/atomic"

	"github.com/papertrade/trading-engine/internal/model"
)

// Index is the ranked snapshot store. Replace swaps the whole ranking
// in one logical operation; Top serves the fast-read path.
type Index interface {
	// Replace atomically substitutes the previous snapshot with
	// entries, which must already be sorted by descending net worth.
	Replace(ctx context.Context, entries []model.LeaderboardEntry) error

	// Top returns the best k entries in rank order.
	Top(ctx context.Context, k int) ([]model.LeaderboardEntry, error)
}

// MemoryIndex keeps the snapshot behind an atomic pointer swap, so
// concurrent readers see either the old or the new ranking, never a
// partially cleared one.
type MemoryIndex struct {
	snapshot atomic.Value // []model.LeaderboardEntry
}

// NewMemoryIndex creates an empty in-memory ranked index.
func NewMemoryIndex() *MemoryIndex {
	idx := &MemoryIndex{}
	idx.snapshot.Store([]model.LeaderboardEntry{})
	return idx
}

func (idx *MemoryIndex) Replace(_ context.Context, entries []model.LeaderboardEntry) error {
	cp := make([]model.LeaderboardEntry, len(entries))
	copy(cp, entries)
	idx.snapshot.Store(cp)
	return nil
}

func (idx *MemoryIndex) Top(_ context.Context, k int) ([]model.LeaderboardEntry, error) {
	entries := idx.snapshot.Load().([]model.LeaderboardEntry)
	if k > len(entries) {
		k = len(entries)
	}
	out := make([]model.LeaderboardEntry, k)
	copy(out, entries[:k])
	return out, nil
}

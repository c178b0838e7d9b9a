// Package pricecache keeps the volatile symbol→price table refreshed
// from the market-data feed. Readers tolerate slightly stale prices;
// a refresh replaces entries for exactly the symbols the feed returned
// and never wipes the rest.
package pricecache

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// Cache is the price-table interface. No price history is retained,
// only the latest quoted value per symbol.
type Cache interface {
	// Price returns the cached price for one symbol. ok is false when
	// the symbol has no cached price.
	Price(ctx context.Context, symbol string) (price decimal.Decimal, ok bool, err error)

	// Prices resolves a batch of symbols in one consistent read.
	// Symbols without a cached price are absent from the result.
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)

	// All returns the full price table.
	All(ctx context.Context) (map[string]decimal.Decimal, error)

	// Update merges quotes into the table and returns how many entries
	// were written. Symbols not present in quotes are left untouched.
	Update(ctx context.Context, quotes []model.Quote) (int, error)
}

// MemoryCache is the in-process Cache used in tests and when Redis is
// not configured.
type MemoryCache struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewMemoryCache creates an empty in-memory price table.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{prices: make(map[string]decimal.Decimal)}
}

func (c *MemoryCache) Price(_ context.Context, symbol string) (decimal.Decimal, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[symbol]
	return p, ok, nil
}

func (c *MemoryCache) Prices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if p, ok := c.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (c *MemoryCache) All(_ context.Context) (map[string]decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(c.prices))
	for s, p := range c.prices {
		out[s] = p
	}
	return out, nil
}

func (c *MemoryCache) Update(_ context.Context, quotes []model.Quote) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range quotes {
		c.prices[q.Symbol] = q.Price
	}
	return len(quotes), nil
}

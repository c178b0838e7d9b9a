package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

type posKey struct {
	userID int64
	symbol string
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. A single mutex serializes units of work, which gives
// the same per-entity linearizability the row locks provide in Postgres.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	users     map[int64]*model.User
	positions map[posKey]*model.Position
	trades    []model.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*model.User),
		positions: make(map[posKey]*model.Position),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return fmt.Errorf("create user %s: %w", u.Email, ErrDuplicate)
		}
	}
	s.nextID++
	u.ID = s.nextID
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *MemoryStore) GetPositions(_ context.Context, userID int64) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions []model.Position
	for _, p := range s.positions {
		if p.UserID == userID && p.Quantity > 0 {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions []model.Position
	for _, p := range s.positions {
		if p.Quantity > 0 {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].UserID != positions[j].UserID {
			return positions[i].UserID < positions[j].UserID
		}
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions, nil
}

func (s *MemoryStore) TradesByUser(_ context.Context, userID int64) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var trades []model.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].UserID == userID {
			trades = append(trades, s.trades[i])
		}
	}
	return trades, nil
}

// InTx stages writes in the transaction and applies them only when fn
// succeeds, so a failed unit of work leaves no partial effect.
func (s *MemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:     s,
		balances:  make(map[int64]decimal.Decimal),
		positions: make(map[posKey]model.Position),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

// memTx stages writes against the store while the store mutex is held.
type memTx struct {
	store     *MemoryStore
	balances  map[int64]decimal.Decimal
	positions map[posKey]model.Position
	trades    []model.Trade
}

func (t *memTx) UserForUpdate(_ context.Context, id int64) (*model.User, error) {
	u, ok := t.store.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	if b, staged := t.balances[id]; staged {
		cp.Balance = b
	}
	return &cp, nil
}

func (t *memTx) UpdateBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	if _, ok := t.store.users[id]; !ok {
		return fmt.Errorf("update balance for user %d: %w", id, ErrNotFound)
	}
	t.balances[id] = balance
	return nil
}

func (t *memTx) PositionForUpdate(_ context.Context, userID int64, symbol string) (*model.Position, error) {
	key := posKey{userID, symbol}
	if p, staged := t.positions[key]; staged {
		cp := p
		return &cp, nil
	}
	if p, ok := t.store.positions[key]; ok {
		cp := *p
		return &cp, nil
	}
	return &model.Position{UserID: userID, Symbol: symbol, AverageCost: decimal.Zero}, nil
}

func (t *memTx) UpsertPosition(_ context.Context, p *model.Position) error {
	cp := *p
	cp.UpdatedAt = time.Now().UTC()
	t.positions[posKey{p.UserID, p.Symbol}] = cp
	return nil
}

func (t *memTx) InsertTrade(_ context.Context, tr *model.Trade) error {
	t.trades = append(t.trades, *tr)
	return nil
}

func (t *memTx) apply() {
	for id, balance := range t.balances {
		t.store.users[id].Balance = balance
	}
	for key, p := range t.positions {
		cp := p
		t.store.positions[key] = &cp
	}
	t.store.trades = append(t.store.trades, t.trades...)
}

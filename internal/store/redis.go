package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// CachedStore wraps the primary Store with a Redis read-through cache
// for the hot read paths (user, holdings, trade history). Writes go
// through the primary; a committed unit of work invalidates the cached
// entries of every user it touched, so reads never serve state older
// than the last commit plus the invalidation window.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Writes (primary first, then invalidate) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.cacheUser(ctx, u)
	return nil
}

// InTx delegates to the primary store and, on commit, drops the cached
// entries of every user the unit of work wrote to.
func (s *CachedStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	touched := make(map[int64]struct{})
	err := s.primary.InTx(ctx, func(tx Tx) error {
		return fn(&trackingTx{Tx: tx, touched: touched})
	})
	if err != nil {
		return err
	}
	for userID := range touched {
		s.rdb.Del(ctx, userKey(userID), positionsKey(userID), tradesKey(userID))
	}
	return nil
}

// trackingTx records which users a unit of work writes to.
type trackingTx struct {
	Tx
	touched map[int64]struct{}
}

func (t *trackingTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	t.touched[id] = struct{}{}
	return t.Tx.UpdateBalance(ctx, id, balance)
}

func (t *trackingTx) UpsertPosition(ctx context.Context, p *model.Position) error {
	t.touched[p.UserID] = struct{}{}
	return t.Tx.UpsertPosition(ctx, p)
}

func (t *trackingTx) InsertTrade(ctx context.Context, tr *model.Trade) error {
	t.touched[tr.UserID] = struct{}{}
	return t.Tx.InsertTrade(ctx, tr)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err == nil {
		var u model.User
		if json.Unmarshal(data, &u) == nil {
			return &u, nil
		}
	}

	u, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheUser(ctx, u)
	return u, nil
}

func (s *CachedStore) GetPositions(ctx context.Context, userID int64) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(userID), data, s.ttl)
	}
	return positions, nil
}

func (s *CachedStore) TradesByUser(ctx context.Context, userID int64) ([]model.Trade, error) {
	data, err := s.rdb.Get(ctx, tradesKey(userID)).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	trades, err := s.primary.TradesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, tradesKey(userID), data, s.ttl)
	}
	return trades, nil
}

// --- Passthrough (full scans feed the recompute pipeline; it reads
// the source of truth directly) ---

func (s *CachedStore) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.primary.ListUsers(ctx)
}

func (s *CachedStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	return s.primary.ListPositions(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheUser(ctx context.Context, u *model.User) {
	if data, err := json.Marshal(u); err == nil {
		s.rdb.Set(ctx, userKey(u.ID), data, s.ttl)
	}
}

func userKey(id int64) string        { return fmt.Sprintf("user:%d", id) }
func positionsKey(id int64) string   { return fmt.Sprintf("positions:%d", id) }
func tradesKey(id int64) string      { return fmt.Sprintf("trades:%d", id) }

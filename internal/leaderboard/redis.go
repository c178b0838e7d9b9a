package leaderboard

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/papertrade/trading-engine/internal/model"
)

const (
	indexKey   = "leaderboard"
	stagingKey = "leaderboard:staging"
)

// RedisIndex stores the ranking in a sorted set: member = JSON entry,
// score = net worth. A rebuild goes into a staging key that is RENAMEd
// over the live one, so readers never see an empty or half-built set.
// Scores are float64 by protocol; the exact decimal net worth travels
// in the member payload.
type RedisIndex struct {
	rdb *redis.Client
}

// NewRedisIndex creates a Redis-backed ranked index.
func NewRedisIndex(rdb *redis.Client) *RedisIndex {
	return &RedisIndex{rdb: rdb}
}

func (idx *RedisIndex) Replace(ctx context.Context, entries []model.LeaderboardEntry) error {
	if len(entries) == 0 {
		pipe := idx.rdb.TxPipeline()
		pipe.Del(ctx, stagingKey)
		pipe.Del(ctx, indexKey)
		_, err := pipe.Exec(ctx)
		return err
	}

	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		score, _ := e.NetWorth.Float64()
		members = append(members, redis.Z{Score: score, Member: payload})
	}

	pipe := idx.rdb.TxPipeline()
	pipe.Del(ctx, stagingKey)
	pipe.ZAdd(ctx, stagingKey, members...)
	pipe.Rename(ctx, stagingKey, indexKey)
	_, err := pipe.Exec(ctx)
	return err
}

func (idx *RedisIndex) Top(ctx context.Context, k int) ([]model.LeaderboardEntry, error) {
	if k <= 0 {
		return nil, nil
	}
	payloads, err := idx.rdb.ZRevRange(ctx, indexKey, 0, int64(k-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, 0, len(payloads))
	for _, payload := range payloads {
		var e model.LeaderboardEntry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

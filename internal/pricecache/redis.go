package pricecache

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// priceKey is the Redis hash holding symbol→price fields.
const priceKey = "prices"

// RedisCache implements Cache on a Redis hash. Cross-symbol atomicity
// is not required: each field is replaced independently, and a refresh
// writes its batch through one pipeline.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache creates a Redis-backed price cache.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	val, err := c.rdb.HGet(ctx, priceKey, symbol).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	price, err := decimal.NewFromString(val)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, false, nil
	}
	return price, true, nil
}

func (c *RedisCache) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	vals, err := c.rdb.HMGet(ctx, priceKey, symbols...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(symbols))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if price, err := decimal.NewFromString(str); err == nil && price.IsPositive() {
			out[symbols[i]] = price
		}
	}
	return out, nil
}

func (c *RedisCache) All(ctx context.Context) (map[string]decimal.Decimal, error) {
	fields, err := c.rdb.HGetAll(ctx, priceKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(fields))
	for symbol, val := range fields {
		if price, err := decimal.NewFromString(val); err == nil {
			out[symbol] = price
		}
	}
	return out, nil
}

// Update writes the returned quotes in one pipeline. Symbols the feed
// did not return keep their previous fields.
func (c *RedisCache) Update(ctx context.Context, quotes []model.Quote) (int, error) {
	if len(quotes) == 0 {
		return 0, nil
	}
	pipe := c.rdb.TxPipeline()
	for _, q := range quotes {
		pipe.HSet(ctx, priceKey, q.Symbol, q.Price.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(quotes), nil
}

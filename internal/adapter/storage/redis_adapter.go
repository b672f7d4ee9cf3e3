package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/hafizdr/stock-ledger/internal/port"
)

const stockKeyPrefix = "stock:"

// RedisAdapter caches per-product stock values for fast reads. The database
// stays authoritative; the ledger overwrites entries after each commit.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetStock(ctx context.Context, productID string, stock int) error {
	return r.client.Set(ctx, stockKeyPrefix+productID, stock, 0).Err()
}

func (r *RedisAdapter) GetStock(ctx context.Context, productID string) (int, bool, error) {
	stock, err := r.client.Get(ctx, stockKeyPrefix+productID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return stock, true, nil
}

func (r *RedisAdapter) DeleteStock(ctx context.Context, productID string) error {
	return r.client.Del(ctx, stockKeyPrefix+productID).Err()
}

var _ port.CacheRepository = (*RedisAdapter)(nil)

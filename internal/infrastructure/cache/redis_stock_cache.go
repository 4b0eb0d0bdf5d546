package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// RedisStockCache implements the stock-on-hand projection cache on Redis so
// all instances share one projection. Values are stored as decimal strings
// under the key produced by ledger.StockKey.String().
type RedisStockCache struct {
	client *redis.Client
}

// NewRedisStockCache creates a new Redis-backed stock cache
func NewRedisStockCache(cfg RedisConfig) (*RedisStockCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStockCache{client: client}, nil
}

// NewRedisStockCacheWithClient creates a cache using an existing Redis client
func NewRedisStockCacheWithClient(client *redis.Client) *RedisStockCache {
	return &RedisStockCache{client: client}
}

// Get returns the cached quantity for the key; found=false on miss
func (c *RedisStockCache) Get(ctx context.Context, key ledger.StockKey) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, key.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("failed to read stock cache: %w", err)
	}

	qty, err := decimal.NewFromString(val)
	if err != nil {
		// A corrupt entry is no worse than a miss; drop it.
		_ = c.client.Del(ctx, key.String()).Err()
		return decimal.Zero, false, nil
	}
	return qty, true, nil
}

// Set stores the quantity for the key with a TTL
func (c *RedisStockCache) Set(ctx context.Context, key ledger.StockKey, qty decimal.Decimal, ttl time.Duration) error {
	if err := c.client.Set(ctx, key.String(), qty.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to write stock cache: %w", err)
	}
	return nil
}

// Invalidate drops the entry for the key
func (c *RedisStockCache) Invalidate(ctx context.Context, key ledger.StockKey) error {
	if err := c.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate stock cache: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisStockCache) Close() error {
	return c.client.Close()
}

// Ensure RedisStockCache implements StockCache
var _ ledger.StockCache = (*RedisStockCache)(nil)

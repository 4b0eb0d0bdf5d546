package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConsumedTokenRegistry remembers approval token IDs that have already
// authorized an operation, for the remaining lifetime of the token.
type ConsumedTokenRegistry interface {
	// MarkConsumed records a token ID as used; ttl is the token's remaining lifetime
	MarkConsumed(ctx context.Context, jti string, ttl time.Duration) error

	// IsConsumed checks whether a token ID has already been used
	IsConsumed(ctx context.Context, jti string) (bool, error)
}

// RedisConsumedTokenRegistry implements ConsumedTokenRegistry using Redis
type RedisConsumedTokenRegistry struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisConsumedTokenRegistryWithClient creates a registry on an existing Redis client
func NewRedisConsumedTokenRegistryWithClient(client *redis.Client) *RedisConsumedTokenRegistry {
	return &RedisConsumedTokenRegistry{
		client:    client,
		keyPrefix: "approval:consumed:",
	}
}

// MarkConsumed records a token ID as used
func (r *RedisConsumedTokenRegistry) MarkConsumed(ctx context.Context, jti string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.keyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark approval token consumed: %w", err)
	}
	return nil
}

// IsConsumed checks whether a token ID has already been used
func (r *RedisConsumedTokenRegistry) IsConsumed(ctx context.Context, jti string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check consumed approval token: %w", err)
	}
	return exists > 0, nil
}

var _ ConsumedTokenRegistry = (*RedisConsumedTokenRegistry)(nil)

// InMemoryConsumedTokenRegistry provides an in-memory implementation for
// development and tests. Not suitable for multi-instance deployments.
type InMemoryConsumedTokenRegistry struct {
	mu       sync.RWMutex
	consumed map[string]time.Time // jti -> expiration time
}

// NewInMemoryConsumedTokenRegistry creates a new in-memory registry
func NewInMemoryConsumedTokenRegistry() *InMemoryConsumedTokenRegistry {
	return &InMemoryConsumedTokenRegistry{
		consumed: make(map[string]time.Time),
	}
}

// MarkConsumed records a token ID as used
func (r *InMemoryConsumedTokenRegistry) MarkConsumed(_ context.Context, jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumed[jti] = time.Now().Add(ttl)
	return nil
}

// IsConsumed checks whether a token ID has already been used
func (r *InMemoryConsumedTokenRegistry) IsConsumed(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expiration, exists := r.consumed[jti]
	if !exists {
		return false, nil
	}
	if time.Now().After(expiration) {
		delete(r.consumed, jti)
		return false, nil
	}
	return true, nil
}

var _ ConsumedTokenRegistry = (*InMemoryConsumedTokenRegistry)(nil)

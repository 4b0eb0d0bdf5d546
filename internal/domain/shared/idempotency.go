package shared

import (
	"context"
	"time"
)

// IdempotencyStore stores processed request keys to prevent duplicate processing.
// Callers of Checkout/Refund supply a request key; a retried request with the
// same key must not post twice.
type IdempotencyStore interface {
	// MarkProcessed marks a request key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, requestKey string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a request key has already been processed
	IsProcessed(ctx context.Context, requestKey string) (bool, error)

	// Release removes a request key so the caller may retry after a failed attempt
	Release(ctx context.Context, requestKey string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is the time-to-live for processed request keys.
	// After this duration, the same key can be processed again.
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

type stockEntry struct {
	qty       decimal.Decimal
	expiresAt time.Time
}

// InMemoryStockCache implements the stock-on-hand projection cache with an
// in-memory map. Suitable for single-instance deployments and testing; the
// projection is rebuildable, so losing it on restart is harmless.
type InMemoryStockCache struct {
	mu      sync.RWMutex
	entries map[string]stockEntry
}

// NewInMemoryStockCache creates a new in-memory stock cache
func NewInMemoryStockCache() *InMemoryStockCache {
	return &InMemoryStockCache{entries: make(map[string]stockEntry)}
}

// Get returns the cached quantity for the key; found=false on miss
func (c *InMemoryStockCache) Get(ctx context.Context, key ledger.StockKey) (decimal.Decimal, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[key.String()]
	if !exists || time.Now().After(e.expiresAt) {
		return decimal.Zero, false, nil
	}
	return e.qty, true, nil
}

// Set stores the quantity for the key with a TTL
func (c *InMemoryStockCache) Set(ctx context.Context, key ledger.StockKey, qty decimal.Decimal, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key.String()] = stockEntry{qty: qty, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Invalidate drops the entry for the key
func (c *InMemoryStockCache) Invalidate(ctx context.Context, key ledger.StockKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key.String())
	return nil
}

// Ensure InMemoryStockCache implements StockCache
var _ ledger.StockCache = (*InMemoryStockCache)(nil)

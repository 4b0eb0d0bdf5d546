package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockKey identifies a stock-on-hand projection entry
type StockKey struct {
	TenantID  uuid.UUID
	ProductID uuid.UUID
	BatchID   *uuid.UUID // nil means all batches for the product
}

// String renders the cache key, e.g. "soh:{tenant}:{product}:{batch|-}"
func (k StockKey) String() string {
	batch := "-"
	if k.BatchID != nil {
		batch = k.BatchID.String()
	}
	return "soh:" + k.TenantID.String() + ":" + k.ProductID.String() + ":" + batch
}

// StockCache is a rebuildable read projection of stock on hand. It is never
// authoritative: a miss or an invalidated entry is always recomputed from the
// movement log. Only the ledger service writes to it.
type StockCache interface {
	// Get returns the cached quantity for the key; found=false on miss
	Get(ctx context.Context, key StockKey) (qty decimal.Decimal, found bool, err error)

	// Set stores the quantity for the key with a TTL
	Set(ctx context.Context, key StockKey, qty decimal.Decimal, ttl time.Duration) error

	// Invalidate drops the entry for the key
	Invalidate(ctx context.Context, key StockKey) error
}

package event

import (
	"context"

	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// StockCacheInvalidationHandler drops stale stock-on-hand projections when
// movements land. The ledger service already invalidates on its own appends;
// this handler covers writers in other processes publishing through the bus,
// and the rebuild path after a reversal.
type StockCacheInvalidationHandler struct {
	cache  ledger.StockCache
	logger *zap.Logger
}

// NewStockCacheInvalidationHandler creates a new handler
func NewStockCacheInvalidationHandler(cache ledger.StockCache, logger *zap.Logger) *StockCacheInvalidationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockCacheInvalidationHandler{cache: cache, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *StockCacheInvalidationHandler) EventTypes() []string {
	return []string{ledger.EventTypeMovementAppended}
}

// Handle invalidates the batch-scoped and product-wide projection entries
// touched by the movement
func (h *StockCacheInvalidationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	appended, ok := event.(*ledger.MovementAppendedEvent)
	if !ok {
		return nil
	}

	keys := []ledger.StockKey{
		{TenantID: appended.TenantID(), ProductID: appended.ProductID},
	}
	if appended.BatchID != nil {
		keys = append(keys, ledger.StockKey{
			TenantID:  appended.TenantID(),
			ProductID: appended.ProductID,
			BatchID:   appended.BatchID,
		})
	}

	for _, key := range keys {
		if err := h.cache.Invalidate(ctx, key); err != nil {
			h.logger.Warn("failed to invalidate stock projection",
				zap.String("key", key.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Ensure StockCacheInvalidationHandler implements EventHandler
var _ shared.EventHandler = (*StockCacheInvalidationHandler)(nil)

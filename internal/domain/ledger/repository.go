package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MovementRepository defines persistence for the append-only movement log.
// There is deliberately no update or delete: the log is the single source of
// truth and corrections are appended as compensating movements.
type MovementRepository interface {
	// Create appends a single movement
	Create(ctx context.Context, m *Movement) error

	// CreateBatch appends multiple movements. When executed inside a
	// transaction scope, the whole set lands atomically or not at all.
	CreateBatch(ctx context.Context, ms []*Movement) error

	// FindByID finds a movement by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Movement, error)

	// FindBySourceTransaction finds all movements posted for a transaction,
	// including compensating entries (which carry the same source), ordered
	// by movement date ascending.
	FindBySourceTransaction(ctx context.Context, sourceTransactionID uuid.UUID) ([]Movement, error)

	// FindByProductAndBatch finds movements for a (product, batch) key ordered
	// by movement date ascending. A nil batchID matches movements without a
	// batch reference.
	FindByProductAndBatch(ctx context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID, filter shared.Filter) ([]Movement, error)

	// FindForValuation finds all movements for a product up to asOf, across
	// batches, ordered by movement date ascending.
	FindForValuation(ctx context.Context, tenantID, productID uuid.UUID, asOf time.Time) ([]Movement, error)

	// SumQuantity sums signed quantities for a (product, batch) key. A nil
	// batchID sums across all batches for the product.
	SumQuantity(ctx context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID) (decimal.Decimal, error)

	// LockStockKey serializes writers of a (tenant, product) stock key until
	// the enclosing transaction ends. A sufficiency check read after the lock
	// cannot be invalidated by a concurrent append on the same key, so
	// check-then-append stays atomic. Must be called inside a transaction
	// scope; outside one the lock would outlive the check.
	LockStockKey(ctx context.Context, tenantID, productID uuid.UUID) error

	// FindForTenant finds movements for a tenant matching the filter
	FindForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Movement, error)

	// CountForTenant counts movements for a tenant matching the filter
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error)
}

// MovementFilter extends shared.Filter with ledger-specific filters
type MovementFilter struct {
	shared.Filter
	ProductID    *uuid.UUID
	BatchID      *uuid.UUID
	SerialUnitID *uuid.UUID
	Kind         *MovementKind
	StartDate    *time.Time
	EndDate      *time.Time
	ReversalOnly bool
}

package lifecycle

import (
	"context"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
)

// SerialUnitRepository defines persistence for serial units
type SerialUnitRepository interface {
	// FindByID finds a serial unit by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*SerialUnit, error)

	// FindByIDForTenant finds a serial unit by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*SerialUnit, error)

	// FindBySerialNumber finds a unit by its serial number within a tenant
	FindBySerialNumber(ctx context.Context, tenantID uuid.UUID, serialNumber string) (*SerialUnit, error)

	// FindBySoldTransaction finds the units consumed by a transaction
	FindBySoldTransaction(ctx context.Context, transactionID uuid.UUID) ([]SerialUnit, error)

	// FindByBatch finds units belonging to a batch
	FindByBatch(ctx context.Context, batchID uuid.UUID, filter shared.Filter) ([]SerialUnit, error)

	// Save creates or updates a serial unit
	Save(ctx context.Context, unit *SerialUnit) error

	// UpdateStatusCAS persists a status transition as a compare-and-swap:
	// the row is updated only while its stored status still equals from.
	// The unit must already carry the post-transition state (new status,
	// sold transaction, timestamps, destroy reason). Returns
	// shared.ErrConcurrencyConflict when the unit moved on concurrently.
	UpdateStatusCAS(ctx context.Context, unit *SerialUnit, from SerialStatus) error
}

// BatchRepository defines persistence for batches and their lineage graph
type BatchRepository interface {
	// FindByID finds a batch by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Batch, error)

	// FindByBatchNumber finds a batch by number within a tenant
	FindByBatchNumber(ctx context.Context, tenantID uuid.UUID, batchNumber string) (*Batch, error)

	// Save creates or updates a batch together with its lineage rows
	Save(ctx context.Context, batch *Batch) error

	// FindParentIDs returns the direct parents of a batch (backward trace)
	FindParentIDs(ctx context.Context, batchID uuid.UUID) ([]uuid.UUID, error)

	// FindChildIDs returns the direct children of a batch (forward trace)
	FindChildIDs(ctx context.Context, batchID uuid.UUID) ([]uuid.UUID, error)
}

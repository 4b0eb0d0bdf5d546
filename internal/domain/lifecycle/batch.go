package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
)

// BatchType represents how a batch came into existence
type BatchType string

const (
	// BatchTypeProduction is a production run output
	BatchTypeProduction BatchType = "PRODUCTION"
	// BatchTypeReceipt is a goods receipt (GRV)
	BatchTypeReceipt BatchType = "RECEIPT"
	// BatchTypeTransfer is a batch created by an inter-location transfer
	BatchTypeTransfer BatchType = "TRANSFER"
)

// IsValid returns true if the batch type is valid
func (t BatchType) IsValid() bool {
	switch t {
	case BatchTypeProduction, BatchTypeReceipt, BatchTypeTransfer:
		return true
	}
	return false
}

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	// BatchStatusOpen accepts new serial units and movements
	BatchStatusOpen BatchStatus = "OPEN"
	// BatchStatusClosed is complete but still visible in queries
	BatchStatusClosed BatchStatus = "CLOSED"
	// BatchStatusArchived is retained for traceability only
	BatchStatusArchived BatchStatus = "ARCHIVED"
)

// IsValid returns true if the status is a valid BatchStatus
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusOpen, BatchStatusClosed, BatchStatusArchived:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status
func (s BatchStatus) CanTransitionTo(target BatchStatus) bool {
	switch s {
	case BatchStatusOpen:
		return target == BatchStatusClosed
	case BatchStatusClosed:
		return target == BatchStatusArchived
	}
	return false
}

// Batch is a production/receipt/transfer run. Parent references form a
// lineage graph used for forward and backward traceability. The graph is
// kept acyclic by validating every parent reference at write time.
type Batch struct {
	shared.BaseEntity
	TenantID    uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_batch_tenant_number"`
	BatchNumber string      `gorm:"type:varchar(100);not null;uniqueIndex:idx_batch_tenant_number"`
	Type        BatchType   `gorm:"type:varchar(20);not null"`
	Status      BatchStatus `gorm:"type:varchar(20);not null;index"`
	ParentIDs   []uuid.UUID `gorm:"-"` // Lineage, persisted via batch_lineage rows
}

// TableName returns the table name for GORM
func (Batch) TableName() string {
	return "batches"
}

// BatchLineage is one parent reference in the lineage graph
type BatchLineage struct {
	BatchID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	ParentID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
}

// TableName returns the table name for GORM
func (BatchLineage) TableName() string {
	return "batch_lineage"
}

// NewBatch creates an open batch
func NewBatch(tenantID uuid.UUID, batchNumber string, batchType BatchType) (*Batch, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if batchNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Batch number cannot be empty")
	}
	if !batchType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invalid batch type")
	}
	return &Batch{
		BaseEntity:  shared.NewBaseEntity(),
		TenantID:    tenantID,
		BatchNumber: batchNumber,
		Type:        batchType,
		Status:      BatchStatusOpen,
	}, nil
}

// Close transitions the batch from OPEN to CLOSED
func (b *Batch) Close() error {
	if !b.Status.CanTransitionTo(BatchStatusClosed) {
		return shared.NewDomainError("INVALID_STATE", "Batch cannot be closed from "+string(b.Status))
	}
	b.Status = BatchStatusClosed
	b.UpdatedAt = time.Now()
	return nil
}

// Archive transitions the batch from CLOSED to ARCHIVED
func (b *Batch) Archive() error {
	if !b.Status.CanTransitionTo(BatchStatusArchived) {
		return shared.NewDomainError("INVALID_STATE", "Batch cannot be archived from "+string(b.Status))
	}
	b.Status = BatchStatusArchived
	b.UpdatedAt = time.Now()
	return nil
}

// ancestorLister is the slice of BatchRepository needed for cycle detection
type ancestorLister interface {
	FindParentIDs(ctx context.Context, batchID uuid.UUID) ([]uuid.UUID, error)
}

// ValidateLineage rejects a set of parent references that would create a
// cycle: a batch may not reach itself by walking parent links. Called at
// batch-creation (and re-parenting) time, before lineage rows are written.
func ValidateLineage(ctx context.Context, repo ancestorLister, batchID uuid.UUID, parentIDs []uuid.UUID) error {
	seen := map[uuid.UUID]bool{}
	queue := append([]uuid.UUID{}, parentIDs...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == batchID {
			return shared.NewDomainError("VALIDATION_ERROR", "Batch lineage would create a cycle")
		}
		if seen[current] {
			continue
		}
		seen[current] = true
		ancestors, err := repo.FindParentIDs(ctx, current)
		if err != nil {
			return err
		}
		queue = append(queue, ancestors...)
	}
	return nil
}

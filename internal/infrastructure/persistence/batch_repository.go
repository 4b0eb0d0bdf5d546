package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormBatchRepository implements lifecycle.BatchRepository using GORM.
// Lineage is persisted as (batch_id, parent_id) edge rows so ancestry can be
// walked in both directions.
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// FindByID finds a batch by its ID, lineage included
func (r *GormBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*lifecycle.Batch, error) {
	var batch lifecycle.Batch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	parents, err := r.FindParentIDs(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	batch.ParentIDs = parents
	return &batch, nil
}

// FindByBatchNumber finds a batch by number within a tenant
func (r *GormBatchRepository) FindByBatchNumber(ctx context.Context, tenantID uuid.UUID, batchNumber string) (*lifecycle.Batch, error) {
	var batch lifecycle.Batch
	if err := r.db.WithContext(ctx).
		First(&batch, "tenant_id = ? AND batch_number = ?", tenantID, batchNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	parents, err := r.FindParentIDs(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	batch.ParentIDs = parents
	return &batch, nil
}

// Save creates or updates a batch together with its lineage rows. The edge
// set is replaced wholesale to match the aggregate's ParentIDs.
func (r *GormBatchRepository) Save(ctx context.Context, batch *lifecycle.Batch) error {
	if err := r.db.WithContext(ctx).Save(batch).Error; err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", batch.ID).
		Delete(&lifecycle.BatchLineage{}).Error; err != nil {
		return err
	}
	if len(batch.ParentIDs) == 0 {
		return nil
	}

	edges := make([]lifecycle.BatchLineage, 0, len(batch.ParentIDs))
	for _, parentID := range batch.ParentIDs {
		edges = append(edges, lifecycle.BatchLineage{BatchID: batch.ID, ParentID: parentID})
	}
	return r.db.WithContext(ctx).Create(&edges).Error
}

// FindParentIDs returns the direct parents of a batch (backward trace)
func (r *GormBatchRepository) FindParentIDs(ctx context.Context, batchID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&lifecycle.BatchLineage{}).
		Where("batch_id = ?", batchID).
		Pluck("parent_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// FindChildIDs returns the direct children of a batch (forward trace)
func (r *GormBatchRepository) FindChildIDs(ctx context.Context, batchID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&lifecycle.BatchLineage{}).
		Where("parent_id = ?", batchID).
		Pluck("batch_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Ensure GormBatchRepository implements BatchRepository
var _ lifecycle.BatchRepository = (*GormBatchRepository)(nil)

package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormSerialUnitRepository implements lifecycle.SerialUnitRepository using GORM
type GormSerialUnitRepository struct {
	db *gorm.DB
}

// NewGormSerialUnitRepository creates a new GormSerialUnitRepository
func NewGormSerialUnitRepository(db *gorm.DB) *GormSerialUnitRepository {
	return &GormSerialUnitRepository{db: db}
}

// FindByID finds a serial unit by its ID
func (r *GormSerialUnitRepository) FindByID(ctx context.Context, id uuid.UUID) (*lifecycle.SerialUnit, error) {
	var unit lifecycle.SerialUnit
	if err := r.db.WithContext(ctx).First(&unit, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &unit, nil
}

// FindByIDForTenant finds a serial unit by ID within a tenant
func (r *GormSerialUnitRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*lifecycle.SerialUnit, error) {
	var unit lifecycle.SerialUnit
	if err := r.db.WithContext(ctx).
		First(&unit, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &unit, nil
}

// FindBySerialNumber finds a unit by its serial number within a tenant
func (r *GormSerialUnitRepository) FindBySerialNumber(ctx context.Context, tenantID uuid.UUID, serialNumber string) (*lifecycle.SerialUnit, error) {
	var unit lifecycle.SerialUnit
	if err := r.db.WithContext(ctx).
		First(&unit, "tenant_id = ? AND serial_number = ?", tenantID, serialNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &unit, nil
}

// FindBySoldTransaction finds the units consumed by a transaction
func (r *GormSerialUnitRepository) FindBySoldTransaction(ctx context.Context, transactionID uuid.UUID) ([]lifecycle.SerialUnit, error) {
	var units []lifecycle.SerialUnit
	if err := r.db.WithContext(ctx).
		Where("sold_in_transaction_id = ?", transactionID).
		Order("serial_number ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

// FindByBatch finds units belonging to a batch
func (r *GormSerialUnitRepository) FindByBatch(ctx context.Context, batchID uuid.UUID, filter shared.Filter) ([]lifecycle.SerialUnit, error) {
	var units []lifecycle.SerialUnit
	query := r.db.WithContext(ctx).Model(&lifecycle.SerialUnit{}).
		Where("batch_id = ?", batchID)

	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "product_id":
			query = query.Where("product_id = ?", value)
		}
	}
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	if err := query.Order("serial_number ASC").Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

// Save creates or updates a serial unit
func (r *GormSerialUnitRepository) Save(ctx context.Context, unit *lifecycle.SerialUnit) error {
	return r.db.WithContext(ctx).Save(unit).Error
}

// UpdateStatusCAS persists a status transition only while the stored row
// still carries the expected prior status. A zero-row update means another
// writer won the race (or the unit is gone) and surfaces as a conflict the
// orchestrator can retry or reject.
func (r *GormSerialUnitRepository) UpdateStatusCAS(ctx context.Context, unit *lifecycle.SerialUnit, from lifecycle.SerialStatus) error {
	result := r.db.WithContext(ctx).
		Model(&lifecycle.SerialUnit{}).
		Where("id = ? AND status = ?", unit.ID, from).
		Updates(map[string]interface{}{
			"status":                 unit.Status,
			"sold_in_transaction_id": unit.SoldInTransactionID,
			"sold_at":                unit.SoldAt,
			"destroyed_reason":       unit.DestroyedReason,
			"destroyed_at":           unit.DestroyedAt,
			"updated_at":             time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Ensure GormSerialUnitRepository implements SerialUnitRepository
var _ lifecycle.SerialUnitRepository = (*GormSerialUnitRepository)(nil)

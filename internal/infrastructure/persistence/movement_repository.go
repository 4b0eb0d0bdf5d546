package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormMovementRepository implements ledger.MovementRepository using GORM.
// Movements are append-only: the repository exposes no update or delete.
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// Create appends a single movement
func (r *GormMovementRepository) Create(ctx context.Context, m *ledger.Movement) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// CreateBatch appends multiple movements
func (r *GormMovementRepository) CreateBatch(ctx context.Context, ms []*ledger.Movement) error {
	if len(ms) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&ms).Error
}

// FindByID finds a movement by its ID
func (r *GormMovementRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Movement, error) {
	var m ledger.Movement
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindBySourceTransaction finds all movements posted for a transaction,
// compensating entries included, ordered by movement date ascending
func (r *GormMovementRepository) FindBySourceTransaction(ctx context.Context, sourceTransactionID uuid.UUID) ([]ledger.Movement, error) {
	var ms []ledger.Movement
	if err := r.db.WithContext(ctx).
		Where("source_transaction_id = ?", sourceTransactionID).
		Order("movement_date ASC, created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}

// FindByProductAndBatch finds movements for a (product, batch) stock key
func (r *GormMovementRepository) FindByProductAndBatch(ctx context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID, filter shared.Filter) ([]ledger.Movement, error) {
	var ms []ledger.Movement
	query := r.db.WithContext(ctx).Model(&ledger.Movement{}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID)
	if batchID != nil {
		query = query.Where("batch_id = ?", *batchID)
	} else {
		query = query.Where("batch_id IS NULL")
	}

	if err := r.applyFilter(query, filter).Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}

// FindForValuation finds all movements for a product up to asOf, across
// batches, ordered by movement date ascending for replay
func (r *GormMovementRepository) FindForValuation(ctx context.Context, tenantID, productID uuid.UUID, asOf time.Time) ([]ledger.Movement, error) {
	var ms []ledger.Movement
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND movement_date <= ?", tenantID, productID, asOf).
		Order("movement_date ASC, created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}

// SumQuantity sums signed quantities for a stock key. A nil batchID sums
// across all batches for the product.
func (r *GormMovementRepository) SumQuantity(ctx context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	query := r.db.WithContext(ctx).
		Model(&ledger.Movement{}).
		Select("COALESCE(SUM(quantity), 0) as total").
		Where("tenant_id = ? AND product_id = ?", tenantID, productID)
	if batchID != nil {
		query = query.Where("batch_id = ?", *batchID)
	}

	if err := query.Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// LockStockKey takes a transaction-scoped advisory lock on the (tenant,
// product) stock key. Concurrent transactions drawing down the same key
// queue here, so the SumQuantity each reads already includes every append
// committed before it. The lock releases at commit or rollback; Postgres
// has no unlock call for xact-scoped advisory locks.
func (r *GormMovementRepository) LockStockKey(ctx context.Context, tenantID, productID uuid.UUID) error {
	key := tenantID.String() + ":" + productID.String()
	return r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error
}

// FindForTenant finds movements for a tenant matching the filter
func (r *GormMovementRepository) FindForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]ledger.Movement, error) {
	var ms []ledger.Movement
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&ledger.Movement{}).
			Where("tenant_id = ?", tenantID),
		filter,
	)

	if err := query.Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}

// CountForTenant counts movements for a tenant matching the filter
func (r *GormMovementRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&ledger.Movement{}).Where("tenant_id = ?", tenantID)
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies filter options to the query
func (r *GormMovementRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if field := ValidateSortField(filter.OrderBy, MovementSortFields, ""); field != "" {
		query = query.Order(field + " " + ValidateSortOrder(filter.OrderDir))
	} else {
		query = query.Order("movement_date ASC, created_at ASC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormMovementRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "product_id":
			query = query.Where("product_id = ?", value)
		case "batch_id":
			query = query.Where("batch_id = ?", value)
		case "serial_unit_id":
			query = query.Where("serial_unit_id = ?", value)
		case "kind":
			query = query.Where("kind = ?", value)
		case "source_transaction_id":
			query = query.Where("source_transaction_id = ?", value)
		case "operator_id":
			query = query.Where("operator_id = ?", value)
		case "start_date":
			query = query.Where("movement_date >= ?", value)
		case "end_date":
			query = query.Where("movement_date <= ?", value)
		case "reversal_only":
			if v, ok := value.(bool); ok && v {
				query = query.Where("reversal_of IS NOT NULL")
			}
		}
	}

	return query
}

// Ensure GormMovementRepository implements MovementRepository
var _ ledger.MovementRepository = (*GormMovementRepository)(nil)

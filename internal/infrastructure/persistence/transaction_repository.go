package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/domain/transaction"
	"gorm.io/gorm"
)

// numberPrefixes maps a transaction type to its document number prefix
var numberPrefixes = map[transaction.Type]string{
	transaction.TypeSale:     "SAL",
	transaction.TypeRefund:   "REF",
	transaction.TypeTransfer: "TRF",
	transaction.TypeReceipt:  "GRV",
}

// GormTransactionRepository implements transaction.Repository using GORM
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// FindByID finds a header (with details) by its ID
func (r *GormTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*transaction.Header, error) {
	var h transaction.Header
	if err := r.db.WithContext(ctx).
		Preload("Details").
		First(&h, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

// FindByIDForTenant finds a header by ID within a tenant
func (r *GormTransactionRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*transaction.Header, error) {
	var h transaction.Header
	if err := r.db.WithContext(ctx).
		Preload("Details").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&h).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

// FindByNumber finds a header by its document number within a tenant
func (r *GormTransactionRepository) FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*transaction.Header, error) {
	var h transaction.Header
	if err := r.db.WithContext(ctx).
		Preload("Details").
		Where("tenant_id = ? AND number = ?", tenantID, number).
		First(&h).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

// FindRefundsOfOriginal finds all refund headers posted against an original
// header, details included
func (r *GormTransactionRepository) FindRefundsOfOriginal(ctx context.Context, originalHeaderID uuid.UUID) ([]transaction.Header, error) {
	var hs []transaction.Header
	if err := r.db.WithContext(ctx).
		Preload("Details").
		Where("type = ? AND original_header_id = ?", transaction.TypeRefund, originalHeaderID).
		Order("transaction_date ASC").
		Find(&hs).Error; err != nil {
		return nil, err
	}
	return hs, nil
}

// FindForTenant finds headers for a tenant matching the filter
func (r *GormTransactionRepository) FindForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]transaction.Header, error) {
	var hs []transaction.Header
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&transaction.Header{}).
			Preload("Details").
			Where("tenant_id = ?", tenantID),
		filter,
	)

	if err := query.Find(&hs).Error; err != nil {
		return nil, err
	}
	return hs, nil
}

// CountForTenant counts headers for a tenant matching the filter
func (r *GormTransactionRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&transaction.Header{}).Where("tenant_id = ?", tenantID)
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates a header together with its details. Details are
// append-only in practice (compensation creates new headers), but removed
// rows are pruned to keep the aggregate authoritative.
func (r *GormTransactionRepository) Save(ctx context.Context, header *transaction.Header) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(header).Error; err != nil {
			return err
		}

		if len(header.Details) > 0 {
			currentIDs := make([]uuid.UUID, len(header.Details))
			for i, d := range header.Details {
				currentIDs[i] = d.ID
			}
			if err := tx.Where("header_id = ? AND id NOT IN ?", header.ID, currentIDs).
				Delete(&transaction.Detail{}).Error; err != nil {
				return err
			}
			for i := range header.Details {
				header.Details[i].HeaderID = header.ID
				if err := tx.Save(&header.Details[i]).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GenerateNumber generates the next document number for a type.
// Format: PREFIX-YYYY-NNNNN (e.g. SAL-2026-00042).
func (r *GormTransactionRepository) GenerateNumber(ctx context.Context, tenantID uuid.UUID, txType transaction.Type) (string, error) {
	typePrefix, ok := numberPrefixes[txType]
	if !ok {
		return "", shared.NewDomainError("VALIDATION_ERROR", "Unknown transaction type "+txType.String())
	}
	prefix := fmt.Sprintf("%s-%d-", typePrefix, time.Now().Year())

	var last transaction.Header
	err := r.db.WithContext(ctx).
		Model(&transaction.Header{}).
		Where("tenant_id = ? AND number LIKE ?", tenantID, prefix+"%").
		Order("number DESC").
		First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	var nextNum int64 = 1
	if err == nil && last.Number != "" {
		parts := strings.Split(last.Number, "-")
		if len(parts) == 3 {
			var num int64
			if _, parseErr := fmt.Sscanf(parts[2], "%d", &num); parseErr == nil {
				nextNum = num + 1
			}
		}
	}

	number := fmt.Sprintf("%s%05d", prefix, nextNum)

	exists, err := r.existsByNumber(ctx, tenantID, number)
	if err != nil {
		return "", err
	}
	for i := 0; exists && i < 100; i++ {
		nextNum++
		number = fmt.Sprintf("%s%05d", prefix, nextNum)
		exists, err = r.existsByNumber(ctx, tenantID, number)
		if err != nil {
			return "", err
		}
	}

	return number, nil
}

func (r *GormTransactionRepository) existsByNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&transaction.Header{}).
		Where("tenant_id = ? AND number = ?", tenantID, number).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter options to the query
func (r *GormTransactionRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if field := ValidateSortField(filter.OrderBy, TransactionSortFields, ""); field != "" {
		query = query.Order(field + " " + ValidateSortOrder(filter.OrderDir))
	} else {
		query = query.Order("transaction_date DESC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormTransactionRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "type":
			query = query.Where("type = ?", value)
		case "status":
			query = query.Where("status = ?", value)
		case "operator_id":
			query = query.Where("operator_id = ?", value)
		case "original_header_id":
			query = query.Where("original_header_id = ?", value)
		case "start_date":
			query = query.Where("transaction_date >= ?", value)
		case "end_date":
			query = query.Where("transaction_date <= ?", value)
		}
	}

	if filter.Search != "" {
		query = query.Where("number ILIKE ?", "%"+filter.Search+"%")
	}

	return query
}

// Ensure GormTransactionRepository implements Repository
var _ transaction.Repository = (*GormTransactionRepository)(nil)

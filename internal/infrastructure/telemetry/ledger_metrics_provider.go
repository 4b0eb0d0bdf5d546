// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLedgerMetricsProvider implements LedgerMetricsProvider using GORM.
// It queries the serial_units and batches tables directly for aggregates.
type GormLedgerMetricsProvider struct {
	db *gorm.DB
}

// NewGormLedgerMetricsProvider creates a new GormLedgerMetricsProvider.
func NewGormLedgerMetricsProvider(db *gorm.DB) *GormLedgerMetricsProvider {
	return &GormLedgerMetricsProvider{db: db}
}

// GetSerialUnitCountByStatus returns the number of serial units per lifecycle status.
func (p *GormLedgerMetricsProvider) GetSerialUnitCountByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	type result struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("serial_units").
		Select("status, COUNT(*) as count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	m := make(map[string]int64, len(results))
	for _, r := range results {
		m[r.Status] = r.Count
	}

	return m, nil
}

// GetOpenTransferBatchCount returns the number of transfer batches still in transit.
func (p *GormLedgerMetricsProvider) GetOpenTransferBatchCount(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("batches").
		Where("tenant_id = ? AND type = ? AND status = ?", tenantID, "TRANSFER", "OPEN").
		Count(&count).Error

	return count, err
}

// GormTenantProvider implements TenantProvider using GORM. Tenants are
// whoever has posted to the ledger.
type GormTenantProvider struct {
	db *gorm.DB
}

// NewGormTenantProvider creates a new GormTenantProvider.
func NewGormTenantProvider(db *gorm.DB) *GormTenantProvider {
	return &GormTenantProvider{db: db}
}

// GetActiveTenantIDs returns all tenant IDs with ledger activity.
func (p *GormTenantProvider) GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Table("stock_movements").
		Distinct("tenant_id").
		Find(&ids).Error

	return ids, err
}

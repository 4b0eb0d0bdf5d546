package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/domain/transaction/acl"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// productRow is the persistence shape of a catalog product. The catalog
// itself is owned elsewhere; this core only reads snapshots through the
// anti-corruption layer, so the row never leaves this package.
type productRow struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	SKU        string          `gorm:"type:varchar(100);not null"`
	Name       string          `gorm:"type:varchar(255);not null"`
	Price      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CostPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TaxRate    decimal.Decimal `gorm:"type:decimal(6,4);not null"`
	Serialized bool            `gorm:"not null;default:false"`
	Sellable   bool            `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the table name for GORM
func (productRow) TableName() string {
	return "products"
}

// GormProductCatalog implements acl.ProductCatalog against the products table
type GormProductCatalog struct {
	db *gorm.DB
}

// NewGormProductCatalog creates a new GormProductCatalog
func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

// GetProduct returns a read-only snapshot of the product for calculation
func (c *GormProductCatalog) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*acl.ProductRef, error) {
	var row productRow
	if err := c.db.WithContext(ctx).
		First(&row, "tenant_id = ? AND id = ?", tenantID, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	return &acl.ProductRef{
		ID:         row.ID,
		SKU:        row.SKU,
		Name:       row.Name,
		Price:      row.Price,
		CostPrice:  row.CostPrice,
		TaxRate:    row.TaxRate,
		Serialized: row.Serialized,
		Sellable:   row.Sellable,
	}, nil
}

// Ensure GormProductCatalog implements ProductCatalog
var _ acl.ProductCatalog = (*GormProductCatalog)(nil)

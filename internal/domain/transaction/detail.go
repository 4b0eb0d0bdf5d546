package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Detail is one line item of a transaction. Quantities are positive on sale
// and refund documents alike; the document type determines the movement sign.
type Detail struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	HeaderID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductSKU   string          `gorm:"type:varchar(100);not null"` // Snapshot at calculation time
	ProductName  string          `gorm:"type:varchar(255);not null"`
	Quantity     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,2);not null"` // VAT-inclusive
	LineDiscount decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	VATAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null"` // Computed after discount
	LineTotal    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CostPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null"` // For margin and valuation
	BatchID      *uuid.UUID      `gorm:"type:uuid;index"`
	SerialUnitID *uuid.UUID      `gorm:"type:uuid;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM
func (Detail) TableName() string {
	return "transaction_details"
}

// NewDetail creates a transaction line. VATAmount and LineTotal come from the
// calculation engine; this constructor only guards shape and range.
func NewDetail(
	productID uuid.UUID,
	productSKU, productName string,
	quantity, unitPrice, lineDiscount, vatAmount, lineTotal, costPrice decimal.Decimal,
) (*Detail, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product ID cannot be empty")
	}
	if productSKU == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product SKU cannot be empty")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Unit price cannot be negative")
	}
	if lineDiscount.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Line discount cannot be negative")
	}
	if costPrice.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Cost price cannot be negative")
	}

	now := time.Now()
	d := &Detail{
		ID:           uuid.New(),
		ProductID:    productID,
		ProductSKU:   productSKU,
		ProductName:  productName,
		Quantity:     quantity,
		UnitPrice:    unitPrice,
		LineDiscount: lineDiscount,
		VATAmount:    vatAmount,
		LineTotal:    lineTotal,
		CostPrice:    costPrice,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// WithBatchID links the line to a batch
func (d *Detail) WithBatchID(batchID uuid.UUID) *Detail {
	d.BatchID = &batchID
	return d
}

// WithSerialUnitID links the line to a serial unit
func (d *Detail) WithSerialUnitID(serialUnitID uuid.UUID) *Detail {
	d.SerialUnitID = &serialUnitID
	return d
}

// Validate enforces the line invariant:
// lineTotal = quantity * unitPrice - lineDiscount, within one cent.
func (d *Detail) Validate() error {
	expected := d.Quantity.Mul(d.UnitPrice).Sub(d.LineDiscount).Round(2)
	if d.LineTotal.Sub(expected).Abs().GreaterThan(centTolerance) {
		return shared.NewDomainError("VALIDATION_ERROR",
			"Line total must equal quantity times unit price minus discount")
	}
	if d.VATAmount.GreaterThan(d.LineTotal) {
		return shared.NewDomainError("VALIDATION_ERROR", "VAT amount cannot exceed the line total")
	}
	return nil
}

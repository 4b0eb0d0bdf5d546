// Package acl provides the anti-corruption layer between the transaction
// bounded context and the external product catalog. The orchestrator works
// against read-only snapshots taken at calculation time, never against the
// catalog's own aggregates.
package acl

import (
	"context"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ProductRef is a read-only snapshot of a catalog product at calculation
// time. Price changes in the catalog after a transaction posts do not affect
// the posted amounts.
type ProductRef struct {
	ID         uuid.UUID
	SKU        string
	Name       string
	Price      decimal.Decimal // VAT-inclusive selling price
	CostPrice  decimal.Decimal
	TaxRate    decimal.Decimal // Fractional, e.g. 0.15
	Serialized bool            // True when units are individually tracked
	Sellable   bool
}

// Validate checks the snapshot is usable for calculation
func (p *ProductRef) Validate() error {
	if p.ID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Product snapshot has no ID")
	}
	if p.SKU == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Product snapshot has no SKU")
	}
	if p.Price.IsNegative() || p.CostPrice.IsNegative() {
		return shared.NewDomainError("OUT_OF_RANGE", "Product prices cannot be negative")
	}
	return nil
}

// ProductCatalog is the external catalog collaborator. Implementations live
// outside this core; tests use fakes.
type ProductCatalog interface {
	// GetProduct returns a snapshot of the product for calculation
	GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*ProductRef, error)
}

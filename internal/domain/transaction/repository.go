package transaction

import (
	"context"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
)

// Repository defines persistence for transaction headers and their details
type Repository interface {
	// FindByID finds a header (with details) by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Header, error)

	// FindByIDForTenant finds a header by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Header, error)

	// FindByNumber finds a header by its document number within a tenant
	FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*Header, error)

	// FindRefundsOfOriginal finds all refund headers posted against an
	// original header, with details, for remaining-quantity validation
	FindRefundsOfOriginal(ctx context.Context, originalHeaderID uuid.UUID) ([]Header, error)

	// FindForTenant finds headers for a tenant matching the filter
	FindForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Header, error)

	// CountForTenant counts headers for a tenant matching the filter
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error)

	// Save creates or updates a header together with its details
	Save(ctx context.Context, header *Header) error

	// GenerateNumber generates the next document number for a type
	GenerateNumber(ctx context.Context, tenantID uuid.UUID, txType Type) (string, error)
}

// Package ledgerquery answers the read-side questions about the movement
// ledger: current stock on hand, historical valuation, movement history, and
// projection verification. It never writes movements; the log is the single
// source of truth and every answer here is derived from it.
package ledgerquery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service exposes the ledger read model
type Service struct {
	movements ledger.MovementRepository
	cache     ledger.StockCache
	ledgerSvc *ledger.Service
	logger    *zap.Logger
}

// NewService creates the query service. cache may be nil.
func NewService(movements ledger.MovementRepository, cache ledger.StockCache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		movements: movements,
		cache:     cache,
		ledgerSvc: ledger.NewService(movements, cache),
		logger:    logger,
	}
}

// StockOnHand returns the derived quantity for a product, optionally scoped
// to one batch
func (s *Service) StockOnHand(ctx context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID) (*StockOnHandDTO, error) {
	qty, err := s.ledgerSvc.StockOnHand(ctx, tenantID, productID, batchID)
	if err != nil {
		return nil, err
	}
	return &StockOnHandDTO{
		ProductID: productID,
		BatchID:   batchID,
		Quantity:  qty,
		AsOf:      time.Now(),
	}, nil
}

// Valuation replays the log up to asOf and returns the weighted-average
// position. A zero asOf means now.
func (s *Service) Valuation(ctx context.Context, tenantID, productID uuid.UUID, asOf time.Time) (*ValuationDTO, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	v, err := s.ledgerSvc.ValuationAt(ctx, tenantID, productID, asOf)
	if err != nil {
		return nil, err
	}
	return &ValuationDTO{
		ProductID:  productID,
		Quantity:   v.Quantity,
		UnitCost:   v.UnitCost,
		TotalValue: v.TotalValue,
		AsOf:       v.AsOf,
	}, nil
}

// MovementHistory lists the ledger entries for a (product, batch) key in
// chronological order, with the net quantity change of the listed page
func (s *Service) MovementHistory(ctx context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID, filter shared.Filter) (*MovementHistoryDTO, error) {
	if tenantID == uuid.Nil || productID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant and product IDs are required")
	}
	movements, err := s.movements.FindByProductAndBatch(ctx, tenantID, productID, batchID, filter)
	if err != nil {
		return nil, err
	}
	dto := &MovementHistoryDTO{
		Movements: make([]MovementDTO, 0, len(movements)),
		NetChange: decimal.Zero,
	}
	for i := range movements {
		dto.Movements = append(dto.Movements, toMovementDTO(&movements[i]))
		dto.NetChange = dto.NetChange.Add(movements[i].Quantity)
	}
	return dto, nil
}

// TransactionMovements lists every ledger entry posted for one transaction,
// compensating entries included
func (s *Service) TransactionMovements(ctx context.Context, sourceTransactionID uuid.UUID) ([]MovementDTO, error) {
	if sourceTransactionID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Source transaction ID is required")
	}
	movements, err := s.movements.FindBySourceTransaction(ctx, sourceTransactionID)
	if err != nil {
		return nil, err
	}
	out := make([]MovementDTO, 0, len(movements))
	for i := range movements {
		out = append(out, toMovementDTO(&movements[i]))
	}
	return out, nil
}

// VerifyProjection compares the cached stock-on-hand value against a fresh
// sum of the log. An inconsistent projection is reported, not repaired; call
// RebuildProjection to repair it.
func (s *Service) VerifyProjection(ctx context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID) (*ProjectionReportDTO, error) {
	if tenantID == uuid.Nil || productID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant and product IDs are required")
	}
	derived, err := s.movements.SumQuantity(ctx, tenantID, productID, batchID)
	if err != nil {
		return nil, err
	}
	report := &ProjectionReportDTO{
		ProductID:  productID,
		BatchID:    batchID,
		Derived:    derived,
		Consistent: true,
	}
	if s.cache == nil {
		return report, nil
	}
	key := ledger.StockKey{TenantID: tenantID, ProductID: productID, BatchID: batchID}
	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	report.CacheFound = found
	if found {
		report.Cached = cached
		report.Consistent = cached.Equal(derived)
	}
	if !report.Consistent {
		s.logger.Warn("stock projection diverged from the ledger",
			zap.String("product_id", productID.String()),
			zap.String("cached", report.Cached.String()),
			zap.String("derived", derived.String()))
	}
	return report, nil
}

// RebuildProjection recomputes and stores the cached quantity for a key
func (s *Service) RebuildProjection(ctx context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID) (*StockOnHandDTO, error) {
	if tenantID == uuid.Nil || productID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant and product IDs are required")
	}
	qty, err := s.ledgerSvc.RebuildProjection(ctx, ledger.StockKey{
		TenantID:  tenantID,
		ProductID: productID,
		BatchID:   batchID,
	})
	if err != nil {
		return nil, err
	}
	return &StockOnHandDTO{
		ProductID: productID,
		BatchID:   batchID,
		Quantity:  qty,
		AsOf:      time.Now(),
	}, nil
}

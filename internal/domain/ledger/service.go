package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DefaultProjectionTTL bounds how long a cached stock-on-hand entry may live
// without being recomputed from the log.
const DefaultProjectionTTL = 15 * time.Minute

// Service is the ledger domain service. It owns the append-only discipline:
// movements go in through Append/AppendSet, corrections through Reverse, and
// every quantity question is answered by summing the log (cache-aside).
//
// The service is constructed over a MovementRepository; inside an atomic unit
// of work the orchestrator passes the transaction-scoped repository so that
// all appends of one commercial event commit together.
type Service struct {
	movements MovementRepository
	cache     StockCache
}

// NewService creates a ledger service. cache may be nil, in which case every
// read replays the log.
func NewService(movements MovementRepository, cache StockCache) *Service {
	return &Service{
		movements: movements,
		cache:     cache,
	}
}

// Append validates and durably appends a single movement, invalidating the
// affected projection keys.
func (s *Service) Append(ctx context.Context, m *Movement) (uuid.UUID, error) {
	if err := validateMovement(m); err != nil {
		return uuid.Nil, err
	}
	if err := s.movements.Create(ctx, m); err != nil {
		return uuid.Nil, err
	}
	s.invalidate(ctx, m)
	return m.ID, nil
}

// AppendSet validates and appends a set of movements as one unit. All
// movements must belong to the same tenant. When the repository is scoped to
// a database transaction the set is atomic.
func (s *Service) AppendSet(ctx context.Context, ms []*Movement) ([]uuid.UUID, error) {
	if len(ms) == 0 {
		return nil, shared.NewDomainError("INVALID_MOVEMENT", "Movement set cannot be empty")
	}
	tenantID := ms[0].TenantID
	for _, m := range ms {
		if err := validateMovement(m); err != nil {
			return nil, err
		}
		if m.TenantID != tenantID {
			return nil, shared.NewDomainError("INVALID_MOVEMENT", "Movement set spans multiple tenants")
		}
	}
	if err := s.movements.CreateBatch(ctx, ms); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ID)
		s.invalidate(ctx, m)
	}
	return ids, nil
}

// Reverse appends a compensating movement for every movement of the source
// transaction that has not been reversed yet.
//
// Idempotency: if every movement is already reversed the call succeeds and
// returns no new movement IDs. A partially reversed transaction is a state
// that should never occur (reversals post atomically); encountering one
// fails with ALREADY_REVERSED so the inconsistency surfaces instead of being
// compounded.
func (s *Service) Reverse(ctx context.Context, sourceTransactionID uuid.UUID, reason string, operatorID *uuid.UUID) ([]uuid.UUID, error) {
	if sourceTransactionID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Source transaction ID cannot be empty")
	}

	all, err := s.movements.FindBySourceTransaction(ctx, sourceTransactionID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, shared.ErrNotFound
	}

	reversed := make(map[uuid.UUID]bool)
	var originals []*Movement
	for i := range all {
		m := &all[i]
		if m.ReversalOf != nil {
			reversed[*m.ReversalOf] = true
		} else {
			originals = append(originals, m)
		}
	}

	var pending []*Movement
	for _, m := range originals {
		if !reversed[m.ID] {
			pending = append(pending, m)
		}
	}

	if len(pending) == 0 {
		// Fully reversed already: success, nothing new to post.
		return nil, nil
	}
	if len(pending) < len(originals) {
		return nil, shared.ErrAlreadyReversed
	}

	compensating := make([]*Movement, 0, len(pending))
	for _, m := range pending {
		compensating = append(compensating, m.Reversed(reason, operatorID))
	}
	if err := s.movements.CreateBatch(ctx, compensating); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(compensating))
	for _, m := range compensating {
		ids = append(ids, m.ID)
		s.invalidate(ctx, m)
	}
	return ids, nil
}

// StockOnHand answers the derived quantity for a (product, batch) key.
// Cache-aside: a hit is served from the projection, a miss is recomputed by
// summing the log and stored back.
func (s *Service) StockOnHand(ctx context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID) (decimal.Decimal, error) {
	if tenantID == uuid.Nil || productID == uuid.Nil {
		return decimal.Zero, shared.NewDomainError("VALIDATION_ERROR", "Tenant and product IDs are required")
	}
	key := StockKey{TenantID: tenantID, ProductID: productID, BatchID: batchID}

	if s.cache != nil {
		if qty, found, err := s.cache.Get(ctx, key); err == nil && found {
			return qty, nil
		}
	}

	qty, err := s.movements.SumQuantity(ctx, tenantID, productID, batchID)
	if err != nil {
		return decimal.Zero, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, qty, DefaultProjectionTTL)
	}
	return qty, nil
}

// ValuationAt replays movements up to asOf and returns the weighted-average
// position. It never consults the cache: historical valuation must be
// reproducible from the log alone.
func (s *Service) ValuationAt(ctx context.Context, tenantID, productID uuid.UUID, asOf time.Time) (Valuation, error) {
	if tenantID == uuid.Nil || productID == uuid.Nil {
		return Valuation{}, shared.NewDomainError("VALIDATION_ERROR", "Tenant and product IDs are required")
	}
	movements, err := s.movements.FindForValuation(ctx, tenantID, productID, asOf)
	if err != nil {
		return Valuation{}, err
	}
	return ReplayValuation(movements, asOf), nil
}

// RebuildProjection recomputes the cached quantity for a key from the log.
// Used by operational tooling and by the projection-verification query.
func (s *Service) RebuildProjection(ctx context.Context, key StockKey) (decimal.Decimal, error) {
	qty, err := s.movements.SumQuantity(ctx, key.TenantID, key.ProductID, key.BatchID)
	if err != nil {
		return decimal.Zero, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, qty, DefaultProjectionTTL); err != nil {
			return qty, err
		}
	}
	return qty, nil
}

func (s *Service) invalidate(ctx context.Context, m *Movement) {
	if s.cache == nil {
		return
	}
	// Both the per-batch key and the all-batches key are stale now.
	_ = s.cache.Invalidate(ctx, StockKey{TenantID: m.TenantID, ProductID: m.ProductID, BatchID: m.BatchID})
	if m.BatchID != nil {
		_ = s.cache.Invalidate(ctx, StockKey{TenantID: m.TenantID, ProductID: m.ProductID})
	}
}

func validateMovement(m *Movement) error {
	if m == nil {
		return shared.NewDomainError("INVALID_MOVEMENT", "Movement cannot be nil")
	}
	if m.Quantity.IsZero() {
		return shared.NewDomainError("INVALID_MOVEMENT", "Quantity cannot be zero")
	}
	if !m.Kind.IsValid() {
		return shared.NewDomainError("INVALID_MOVEMENT", "Invalid movement kind")
	}
	if m.ProductID == uuid.Nil || m.TenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_MOVEMENT", "Product and tenant references are required")
	}
	if m.SourceTransactionID == uuid.Nil || m.SourceLineID == uuid.Nil {
		return shared.NewDomainError("INVALID_MOVEMENT", "Source transaction and line references are required")
	}
	return nil
}

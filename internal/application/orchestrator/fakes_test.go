package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/domain/shared/valueobject"
	"github.com/retailcore/backend/internal/domain/transaction"
	"github.com/retailcore/backend/internal/domain/transaction/acl"
	"github.com/shopspring/decimal"
)

// memState is the shared in-memory store behind the fake repositories
type memState struct {
	mu        sync.Mutex
	movements []ledger.Movement
	serials   map[uuid.UUID]lifecycle.SerialUnit
	batches   map[uuid.UUID]lifecycle.Batch
	headers   map[uuid.UUID]transaction.Header
	seq       int
}

func newMemState() *memState {
	return &memState{
		serials: map[uuid.UUID]lifecycle.SerialUnit{},
		batches: map[uuid.UUID]lifecycle.Batch{},
		headers: map[uuid.UUID]transaction.Header{},
	}
}

func (s *memState) snapshot() *memState {
	copied := newMemState()
	copied.movements = append([]ledger.Movement{}, s.movements...)
	for k, v := range s.serials {
		copied.serials[k] = v
	}
	for k, v := range s.batches {
		b := v
		b.ParentIDs = append([]uuid.UUID{}, v.ParentIDs...)
		copied.batches[k] = b
	}
	for k, v := range s.headers {
		h := v
		h.Details = append([]transaction.Detail{}, v.Details...)
		copied.headers[k] = h
	}
	copied.seq = s.seq
	return copied
}

func (s *memState) restore(from *memState) {
	s.movements = from.movements
	s.serials = from.serials
	s.batches = from.batches
	s.headers = from.headers
	s.seq = from.seq
}

// memScope runs the function against the shared state and rolls the state
// back on error, mimicking a database transaction
type memScope struct {
	state *memState
}

func (s *memScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	before := s.state.snapshot()
	if err := fn(&memRepos{state: s.state}); err != nil {
		s.state.restore(before)
		return err
	}
	return nil
}

type memRepos struct {
	state *memState
}

func (r *memRepos) MovementRepo() ledger.MovementRepository        { return &memMovementRepo{state: r.state} }
func (r *memRepos) SerialUnitRepo() lifecycle.SerialUnitRepository { return &memSerialRepo{state: r.state} }
func (r *memRepos) BatchRepo() lifecycle.BatchRepository           { return &memBatchRepo{state: r.state} }
func (r *memRepos) TransactionRepo() transaction.Repository        { return &memTransactionRepo{state: r.state} }

// --- movements ---

type memMovementRepo struct {
	state *memState
}

func (r *memMovementRepo) Create(_ context.Context, m *ledger.Movement) error {
	r.state.movements = append(r.state.movements, *m)
	return nil
}

func (r *memMovementRepo) CreateBatch(_ context.Context, ms []*ledger.Movement) error {
	for _, m := range ms {
		r.state.movements = append(r.state.movements, *m)
	}
	return nil
}

func (r *memMovementRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.Movement, error) {
	for i := range r.state.movements {
		if r.state.movements[i].ID == id {
			m := r.state.movements[i]
			return &m, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memMovementRepo) FindBySourceTransaction(_ context.Context, sourceTransactionID uuid.UUID) ([]ledger.Movement, error) {
	var out []ledger.Movement
	for _, m := range r.state.movements {
		if m.SourceTransactionID == sourceTransactionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMovementRepo) FindByProductAndBatch(_ context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID, _ shared.Filter) ([]ledger.Movement, error) {
	var out []ledger.Movement
	for _, m := range r.state.movements {
		if m.TenantID == tenantID && m.ProductID == productID && fakeBatchMatches(m.BatchID, batchID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMovementRepo) FindForValuation(_ context.Context, tenantID, productID uuid.UUID, asOf time.Time) ([]ledger.Movement, error) {
	var out []ledger.Movement
	for _, m := range r.state.movements {
		if m.TenantID == tenantID && m.ProductID == productID && !m.MovementDate.After(asOf) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMovementRepo) SumQuantity(_ context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, m := range r.state.movements {
		if m.TenantID != tenantID || m.ProductID != productID {
			continue
		}
		if batchID != nil && !fakeBatchMatches(m.BatchID, batchID) {
			continue
		}
		total = total.Add(m.Quantity)
	}
	return total, nil
}

func (r *memMovementRepo) LockStockKey(_ context.Context, _, _ uuid.UUID) error {
	// memScope already serializes whole transactions under one mutex
	return nil
}

func (r *memMovementRepo) FindForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) ([]ledger.Movement, error) {
	var out []ledger.Movement
	for _, m := range r.state.movements {
		if m.TenantID == tenantID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMovementRepo) CountForTenant(ctx context.Context, tenantID uuid.UUID, f shared.Filter) (int64, error) {
	ms, err := r.FindForTenant(ctx, tenantID, f)
	return int64(len(ms)), err
}

func fakeBatchMatches(have, want *uuid.UUID) bool {
	if want == nil {
		return have == nil
	}
	return have != nil && *have == *want
}

// --- serial units ---

type memSerialRepo struct {
	state *memState
}

func (r *memSerialRepo) FindByID(_ context.Context, id uuid.UUID) (*lifecycle.SerialUnit, error) {
	if u, ok := r.state.serials[id]; ok {
		return &u, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memSerialRepo) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*lifecycle.SerialUnit, error) {
	u, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (r *memSerialRepo) FindBySerialNumber(_ context.Context, tenantID uuid.UUID, serialNumber string) (*lifecycle.SerialUnit, error) {
	for _, u := range r.state.serials {
		if u.TenantID == tenantID && u.SerialNumber == serialNumber {
			unit := u
			return &unit, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memSerialRepo) FindBySoldTransaction(_ context.Context, transactionID uuid.UUID) ([]lifecycle.SerialUnit, error) {
	var out []lifecycle.SerialUnit
	for _, u := range r.state.serials {
		if u.SoldInTransactionID != nil && *u.SoldInTransactionID == transactionID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memSerialRepo) FindByBatch(_ context.Context, batchID uuid.UUID, _ shared.Filter) ([]lifecycle.SerialUnit, error) {
	var out []lifecycle.SerialUnit
	for _, u := range r.state.serials {
		if u.BatchID != nil && *u.BatchID == batchID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memSerialRepo) Save(_ context.Context, unit *lifecycle.SerialUnit) error {
	r.state.serials[unit.ID] = *unit
	return nil
}

func (r *memSerialRepo) UpdateStatusCAS(_ context.Context, unit *lifecycle.SerialUnit, from lifecycle.SerialStatus) error {
	stored, ok := r.state.serials[unit.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Status != from {
		return shared.ErrConcurrencyConflict
	}
	r.state.serials[unit.ID] = *unit
	return nil
}

// --- batches ---

type memBatchRepo struct {
	state *memState
}

func (r *memBatchRepo) FindByID(_ context.Context, id uuid.UUID) (*lifecycle.Batch, error) {
	if b, ok := r.state.batches[id]; ok {
		return &b, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memBatchRepo) FindByBatchNumber(_ context.Context, tenantID uuid.UUID, batchNumber string) (*lifecycle.Batch, error) {
	for _, b := range r.state.batches {
		if b.TenantID == tenantID && b.BatchNumber == batchNumber {
			batch := b
			return &batch, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memBatchRepo) Save(_ context.Context, batch *lifecycle.Batch) error {
	r.state.batches[batch.ID] = *batch
	return nil
}

func (r *memBatchRepo) FindParentIDs(_ context.Context, batchID uuid.UUID) ([]uuid.UUID, error) {
	if b, ok := r.state.batches[batchID]; ok {
		return append([]uuid.UUID{}, b.ParentIDs...), nil
	}
	return nil, nil
}

func (r *memBatchRepo) FindChildIDs(_ context.Context, batchID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, b := range r.state.batches {
		for _, p := range b.ParentIDs {
			if p == batchID {
				out = append(out, b.ID)
			}
		}
	}
	return out, nil
}

// --- transaction headers ---

type memTransactionRepo struct {
	state *memState
}

func (r *memTransactionRepo) FindByID(_ context.Context, id uuid.UUID) (*transaction.Header, error) {
	if h, ok := r.state.headers[id]; ok {
		copied := h
		copied.Details = append([]transaction.Detail{}, h.Details...)
		return &copied, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memTransactionRepo) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*transaction.Header, error) {
	h, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return h, nil
}

func (r *memTransactionRepo) FindByNumber(_ context.Context, tenantID uuid.UUID, number string) (*transaction.Header, error) {
	for _, h := range r.state.headers {
		if h.TenantID == tenantID && h.Number == number {
			copied := h
			copied.Details = append([]transaction.Detail{}, h.Details...)
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memTransactionRepo) FindRefundsOfOriginal(_ context.Context, originalHeaderID uuid.UUID) ([]transaction.Header, error) {
	var out []transaction.Header
	for _, h := range r.state.headers {
		if h.Type == transaction.TypeRefund && h.OriginalHeaderID != nil && *h.OriginalHeaderID == originalHeaderID {
			copied := h
			copied.Details = append([]transaction.Detail{}, h.Details...)
			out = append(out, copied)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) FindForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) ([]transaction.Header, error) {
	var out []transaction.Header
	for _, h := range r.state.headers {
		if h.TenantID == tenantID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) CountForTenant(ctx context.Context, tenantID uuid.UUID, f shared.Filter) (int64, error) {
	hs, err := r.FindForTenant(ctx, tenantID, f)
	return int64(len(hs)), err
}

func (r *memTransactionRepo) Save(_ context.Context, header *transaction.Header) error {
	copied := *header
	copied.Details = append([]transaction.Detail{}, header.Details...)
	r.state.headers[header.ID] = copied
	return nil
}

func (r *memTransactionRepo) GenerateNumber(_ context.Context, _ uuid.UUID, txType transaction.Type) (string, error) {
	r.state.seq++
	return fmt.Sprintf("%s-%06d", txType, r.state.seq), nil
}

// --- collaborators ---

type fakeCatalog struct {
	products map[uuid.UUID]*acl.ProductRef
}

func (c *fakeCatalog) GetProduct(_ context.Context, _, productID uuid.UUID) (*acl.ProductRef, error) {
	if p, ok := c.products[productID]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, shared.ErrNotFound
}

type fakeGateway struct {
	decline bool
	calls   int
}

func (g *fakeGateway) Authorize(_ context.Context, _ valueobject.Money, _ TenderMethod) (*TenderResult, error) {
	g.calls++
	if g.decline {
		return &TenderResult{Authorized: false, Message: "card declined"}, nil
	}
	return &TenderResult{Authorized: true, Reference: "AUTH-1"}, nil
}

type fakeApprovals struct {
	validToken string
}

func (a *fakeApprovals) IsElevatedApprovalValid(_ context.Context, token string, _ ApprovalAction) (bool, error) {
	return token == a.validToken && token != "", nil
}

type memIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{keys: map[string]bool{}}
}

func (s *memIdempotencyStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *memIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *memIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *memIdempotencyStore) Close() error { return nil }

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/domain/transaction"
	"github.com/retailcore/backend/internal/domain/transaction/acl"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// committedStore holds state as the database sees it between transactions.
// Movements appended inside a transaction stay invisible to other
// transactions until commit, which is the visibility rule that makes a
// naive check-then-append oversell under concurrency.
type committedStore struct {
	mu        sync.Mutex
	movements []ledger.Movement
	headers   map[uuid.UUID]transaction.Header
	seq       int
	keyLocks  map[string]*sync.Mutex
}

func newCommittedStore() *committedStore {
	return &committedStore{
		headers:  map[uuid.UUID]transaction.Header{},
		keyLocks: map[string]*sync.Mutex{},
	}
}

func (s *committedStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyLocks[key] == nil {
		s.keyLocks[key] = &sync.Mutex{}
	}
	return s.keyLocks[key]
}

func (s *committedStore) sum(tenantID, productID uuid.UUID) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, m := range s.movements {
		if m.TenantID == tenantID && m.ProductID == productID {
			total = total.Add(m.Quantity)
		}
	}
	return total
}

// dbTxn is one in-flight transaction over the committed store: reads see
// committed rows plus its own buffered writes, the buffer lands at commit,
// and held stock-key locks release when the transaction ends.
type dbTxn struct {
	store   *committedStore
	pending []ledger.Movement
	held    []*sync.Mutex
}

func (t *dbTxn) lockKey(key string) {
	l := t.store.keyLock(key)
	l.Lock()
	t.held = append(t.held, l)
}

func (t *dbTxn) finish(commit bool) {
	t.store.mu.Lock()
	if commit {
		t.store.movements = append(t.store.movements, t.pending...)
	}
	t.store.mu.Unlock()
	for _, l := range t.held {
		l.Unlock()
	}
}

type dbScope struct {
	store *committedStore
}

func (s *dbScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	txn := &dbTxn{store: s.store}
	err := fn(&dbRepos{txn: txn})
	txn.finish(err == nil)
	return err
}

type dbRepos struct {
	txn *dbTxn
}

func (r *dbRepos) MovementRepo() ledger.MovementRepository { return &dbMovementRepo{txn: r.txn} }
func (r *dbRepos) SerialUnitRepo() lifecycle.SerialUnitRepository {
	return &memSerialRepo{state: newMemState()}
}
func (r *dbRepos) BatchRepo() lifecycle.BatchRepository { return &memBatchRepo{state: newMemState()} }
func (r *dbRepos) TransactionRepo() transaction.Repository {
	return &dbTransactionRepo{txn: r.txn}
}

type dbMovementRepo struct {
	txn *dbTxn
}

func (r *dbMovementRepo) Create(_ context.Context, m *ledger.Movement) error {
	r.txn.pending = append(r.txn.pending, *m)
	return nil
}

func (r *dbMovementRepo) CreateBatch(_ context.Context, ms []*ledger.Movement) error {
	for _, m := range ms {
		r.txn.pending = append(r.txn.pending, *m)
	}
	return nil
}

func (r *dbMovementRepo) FindByID(_ context.Context, _ uuid.UUID) (*ledger.Movement, error) {
	return nil, shared.ErrNotFound
}

func (r *dbMovementRepo) FindBySourceTransaction(_ context.Context, _ uuid.UUID) ([]ledger.Movement, error) {
	return nil, nil
}

func (r *dbMovementRepo) FindByProductAndBatch(_ context.Context, _, _ uuid.UUID, _ *uuid.UUID, _ shared.Filter) ([]ledger.Movement, error) {
	return nil, nil
}

func (r *dbMovementRepo) FindForValuation(_ context.Context, _, _ uuid.UUID, _ time.Time) ([]ledger.Movement, error) {
	return nil, nil
}

func (r *dbMovementRepo) SumQuantity(_ context.Context, tenantID, productID uuid.UUID, _ *uuid.UUID) (decimal.Decimal, error) {
	total := r.txn.store.sum(tenantID, productID)
	for _, m := range r.txn.pending {
		if m.TenantID == tenantID && m.ProductID == productID {
			total = total.Add(m.Quantity)
		}
	}
	return total, nil
}

func (r *dbMovementRepo) LockStockKey(_ context.Context, tenantID, productID uuid.UUID) error {
	r.txn.lockKey(tenantID.String() + ":" + productID.String())
	return nil
}

func (r *dbMovementRepo) FindForTenant(_ context.Context, _ uuid.UUID, _ shared.Filter) ([]ledger.Movement, error) {
	return nil, nil
}

func (r *dbMovementRepo) CountForTenant(_ context.Context, _ uuid.UUID, _ shared.Filter) (int64, error) {
	return 0, nil
}

type dbTransactionRepo struct {
	txn *dbTxn
}

func (r *dbTransactionRepo) FindByID(_ context.Context, id uuid.UUID) (*transaction.Header, error) {
	r.txn.store.mu.Lock()
	defer r.txn.store.mu.Unlock()
	if h, ok := r.txn.store.headers[id]; ok {
		copied := h
		return &copied, nil
	}
	return nil, shared.ErrNotFound
}

func (r *dbTransactionRepo) FindByIDForTenant(ctx context.Context, _, id uuid.UUID) (*transaction.Header, error) {
	return r.FindByID(ctx, id)
}

func (r *dbTransactionRepo) FindByNumber(_ context.Context, _ uuid.UUID, _ string) (*transaction.Header, error) {
	return nil, shared.ErrNotFound
}

func (r *dbTransactionRepo) FindRefundsOfOriginal(_ context.Context, _ uuid.UUID) ([]transaction.Header, error) {
	return nil, nil
}

func (r *dbTransactionRepo) FindForTenant(_ context.Context, _ uuid.UUID, _ shared.Filter) ([]transaction.Header, error) {
	return nil, nil
}

func (r *dbTransactionRepo) CountForTenant(_ context.Context, _ uuid.UUID, _ shared.Filter) (int64, error) {
	return 0, nil
}

func (r *dbTransactionRepo) Save(_ context.Context, header *transaction.Header) error {
	r.txn.store.mu.Lock()
	defer r.txn.store.mu.Unlock()
	copied := *header
	copied.Details = append([]transaction.Detail{}, header.Details...)
	r.txn.store.headers[header.ID] = copied
	return nil
}

func (r *dbTransactionRepo) GenerateNumber(_ context.Context, _ uuid.UUID, txType transaction.Type) (string, error) {
	r.txn.store.mu.Lock()
	defer r.txn.store.mu.Unlock()
	r.txn.store.seq++
	return fmt.Sprintf("%s-%06d", txType, r.txn.store.seq), nil
}

// TestCheckoutConcurrentStockDraw races two checkouts for the last unit of a
// fungible product through transactions with commit-time visibility. The
// stock-key lock must serialize them: the second reads the first's committed
// debit and is rejected, leaving stock at zero instead of oversold.
func TestCheckoutConcurrentStockDraw(t *testing.T) {
	store := newCommittedStore()
	tenantID := uuid.New()
	operator := uuid.New()

	product := &acl.ProductRef{
		ID:         uuid.New(),
		SKU:        "LAST-ONE",
		Name:       "Last unit on the shelf",
		Price:      d("115.00"),
		CostPrice:  d("70.00"),
		TaxRate:    d("0.15"),
		Serialized: false,
		Sellable:   true,
	}
	grv, err := ledger.NewMovement(tenantID, product.ID, ledger.MovementKindGRV, d("1"), d("70.00"), uuid.New(), uuid.New())
	require.NoError(t, err)
	store.movements = append(store.movements, *grv)

	svc := NewService(
		&dbScope{store: store},
		nil,
		&fakeCatalog{products: map[uuid.UUID]*acl.ProductRef{product.ID: product}},
		nil,
		&fakeApprovals{},
		newMemIdempotencyStore(),
		nil,
		zap.NewNop(),
		DefaultConfig(),
	)

	req := CheckoutRequest{
		TenantID:   tenantID,
		OperatorID: operator,
		Lines:      []CheckoutLine{{ProductID: product.ID, Quantity: d("1")}},
		Tenders:    cashTenders("115.00"),
	}

	start := make(chan struct{})
	results := make([]*Result, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = svc.Checkout(context.Background(), req)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, rejected := 0, 0
	for i := range errs {
		require.NoError(t, errs[i])
	}
	for _, res := range results {
		if res.Success {
			succeeded++
		} else {
			rejected++
			assert.Contains(t, res.Reasons[0], "Insufficient stock")
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one checkout may take the last unit")
	assert.Equal(t, 1, rejected)
	assert.True(t, store.sum(tenantID, product.ID).IsZero(),
		"stock must land at zero, not negative: %s", store.sum(tenantID, product.ID))
}

// conflictingSerialRepo injects a bounded number of compare-and-swap
// conflicts before delegating, standing in for a concurrent checkout that
// claims the unit between the read and the swap.
type conflictingSerialRepo struct {
	lifecycle.SerialUnitRepository
	conflicts int32
	casCalls  int32
}

func (r *conflictingSerialRepo) UpdateStatusCAS(ctx context.Context, unit *lifecycle.SerialUnit, from lifecycle.SerialStatus) error {
	atomic.AddInt32(&r.casCalls, 1)
	if atomic.AddInt32(&r.conflicts, -1) >= 0 {
		return shared.ErrConcurrencyConflict
	}
	return r.SerialUnitRepository.UpdateStatusCAS(ctx, unit, from)
}

type conflictRepos struct {
	TransactionalRepositories
	serials *conflictingSerialRepo
}

func (r *conflictRepos) SerialUnitRepo() lifecycle.SerialUnitRepository { return r.serials }

type conflictScope struct {
	inner   *memScope
	serials *conflictingSerialRepo
}

func (s *conflictScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	return s.inner.Execute(ctx, func(repos TransactionalRepositories) error {
		s.serials.SerialUnitRepository = repos.SerialUnitRepo()
		return fn(&conflictRepos{TransactionalRepositories: repos, serials: s.serials})
	})
}

func newConflictEnv(t *testing.T, conflicts int32) (*testEnv, *conflictingSerialRepo) {
	t.Helper()
	env := newTestEnv(t)
	serials := &conflictingSerialRepo{conflicts: conflicts}
	env.svc = NewService(
		&conflictScope{inner: &memScope{state: env.state}, serials: serials},
		nil,
		env.catalog,
		env.gateway,
		env.approvals,
		env.idem,
		nil,
		zap.NewNop(),
		DefaultConfig(),
	)
	return env, serials
}

func TestCheckoutSerialClaimConflict(t *testing.T) {
	t.Run("retries a conflicted claim and completes", func(t *testing.T) {
		env, serials := newConflictEnv(t, 1)
		productID := env.addProduct("CAM-01", "230.00", "120.00", true)
		unitID := env.addSerialUnit(t, productID, "SN-CAS-001")

		result, err := env.svc.Checkout(context.Background(), CheckoutRequest{
			TenantID:   env.tenantID,
			OperatorID: env.operator,
			Lines:      []CheckoutLine{{ProductID: productID, Quantity: d("1"), SerialUnitID: &unitID}},
			Tenders:    cashTenders("230.00"),
		})
		require.NoError(t, err)
		require.True(t, result.Success, "reasons: %v", result.Reasons)

		assert.Equal(t, int32(2), serials.casCalls, "first claim conflicts, the retry lands")
		sold := env.state.serials[unitID]
		assert.Equal(t, lifecycle.SerialStatusSold, sold.Status)

		// The conflicted attempt rolled back; only the retry's movement exists.
		sale := 0
		for _, m := range env.state.movements {
			if m.Kind == ledger.MovementKindSale {
				sale++
			}
		}
		assert.Equal(t, 1, sale)
	})

	t.Run("gives up after the bounded retries", func(t *testing.T) {
		env, _ := newConflictEnv(t, 100)
		productID := env.addProduct("CAM-02", "230.00", "120.00", true)
		unitID := env.addSerialUnit(t, productID, "SN-CAS-002")

		result, err := env.svc.Checkout(context.Background(), CheckoutRequest{
			TenantID:   env.tenantID,
			OperatorID: env.operator,
			Lines:      []CheckoutLine{{ProductID: productID, Quantity: d("1"), SerialUnitID: &unitID}},
			Tenders:    cashTenders("230.00"),
		})
		require.NoError(t, err)
		require.False(t, result.Success)
		assert.Contains(t, result.Reasons[0], "claimed by a concurrent checkout")

		unit := env.state.serials[unitID]
		assert.Equal(t, lifecycle.SerialStatusAssigned, unit.Status, "no attempt may leave a partial claim")
		for _, m := range env.state.movements {
			assert.NotEqual(t, ledger.MovementKindSale, m.Kind)
		}
	})
}

package ledgerquery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMovementRepo is a slice-backed MovementRepository for query tests
type fakeMovementRepo struct {
	movements []ledger.Movement
}

func (r *fakeMovementRepo) Create(_ context.Context, m *ledger.Movement) error {
	r.movements = append(r.movements, *m)
	return nil
}

func (r *fakeMovementRepo) CreateBatch(_ context.Context, ms []*ledger.Movement) error {
	for _, m := range ms {
		r.movements = append(r.movements, *m)
	}
	return nil
}

func (r *fakeMovementRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.Movement, error) {
	for i := range r.movements {
		if r.movements[i].ID == id {
			m := r.movements[i]
			return &m, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeMovementRepo) FindBySourceTransaction(_ context.Context, sourceTransactionID uuid.UUID) ([]ledger.Movement, error) {
	var out []ledger.Movement
	for _, m := range r.movements {
		if m.SourceTransactionID == sourceTransactionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMovementRepo) FindByProductAndBatch(_ context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID, _ shared.Filter) ([]ledger.Movement, error) {
	var out []ledger.Movement
	for _, m := range r.movements {
		if m.TenantID != tenantID || m.ProductID != productID {
			continue
		}
		if batchID != nil && (m.BatchID == nil || *m.BatchID != *batchID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *fakeMovementRepo) FindForValuation(_ context.Context, tenantID, productID uuid.UUID, asOf time.Time) ([]ledger.Movement, error) {
	var out []ledger.Movement
	for _, m := range r.movements {
		if m.TenantID == tenantID && m.ProductID == productID && !m.MovementDate.After(asOf) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMovementRepo) SumQuantity(_ context.Context, tenantID, productID uuid.UUID, batchID *uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, m := range r.movements {
		if m.TenantID != tenantID || m.ProductID != productID {
			continue
		}
		if batchID != nil && (m.BatchID == nil || *m.BatchID != *batchID) {
			continue
		}
		total = total.Add(m.Quantity)
	}
	return total, nil
}

func (r *fakeMovementRepo) LockStockKey(_ context.Context, _, _ uuid.UUID) error {
	return nil
}

func (r *fakeMovementRepo) FindForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) ([]ledger.Movement, error) {
	var out []ledger.Movement
	for _, m := range r.movements {
		if m.TenantID == tenantID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMovementRepo) CountForTenant(ctx context.Context, tenantID uuid.UUID, f shared.Filter) (int64, error) {
	ms, err := r.FindForTenant(ctx, tenantID, f)
	return int64(len(ms)), err
}

// fakeStockCache is a map-backed StockCache
type fakeStockCache struct {
	entries map[string]decimal.Decimal
}

func newFakeStockCache() *fakeStockCache {
	return &fakeStockCache{entries: map[string]decimal.Decimal{}}
}

func (c *fakeStockCache) Get(_ context.Context, key ledger.StockKey) (decimal.Decimal, bool, error) {
	qty, ok := c.entries[key.String()]
	return qty, ok, nil
}

func (c *fakeStockCache) Set(_ context.Context, key ledger.StockKey, qty decimal.Decimal, _ time.Duration) error {
	c.entries[key.String()] = qty
	return nil
}

func (c *fakeStockCache) Invalidate(_ context.Context, key ledger.StockKey) error {
	delete(c.entries, key.String())
	return nil
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func seedMovement(t *testing.T, repo *fakeMovementRepo, tenantID, productID uuid.UUID, kind ledger.MovementKind, qty, unitValue string, at time.Time) *ledger.Movement {
	t.Helper()
	m, err := ledger.NewMovement(tenantID, productID, kind, d(qty), d(unitValue), uuid.New(), uuid.New())
	require.NoError(t, err)
	m.WithMovementDate(at)
	repo.movements = append(repo.movements, *m)
	return m
}

func TestStockOnHand(t *testing.T) {
	tenantID, productID := uuid.New(), uuid.New()
	now := time.Now()

	t.Run("sums the log on a cache miss and stores the result", func(t *testing.T) {
		repo := &fakeMovementRepo{}
		cache := newFakeStockCache()
		seedMovement(t, repo, tenantID, productID, ledger.MovementKindGRV, "10", "60", now.Add(-2*time.Hour))
		seedMovement(t, repo, tenantID, productID, ledger.MovementKindSale, "-3", "60", now.Add(-time.Hour))

		svc := NewService(repo, cache, nil)
		dto, err := svc.StockOnHand(context.Background(), tenantID, productID, nil)
		require.NoError(t, err)
		assert.Equal(t, "7.0000", dto.Quantity.StringFixed(4))

		key := ledger.StockKey{TenantID: tenantID, ProductID: productID}
		cached, found := cache.entries[key.String()]
		require.True(t, found)
		assert.Equal(t, "7.0000", cached.StringFixed(4))
	})

	t.Run("serves a cache hit without replay", func(t *testing.T) {
		repo := &fakeMovementRepo{}
		cache := newFakeStockCache()
		key := ledger.StockKey{TenantID: tenantID, ProductID: productID}
		cache.entries[key.String()] = d("42")

		svc := NewService(repo, cache, nil)
		dto, err := svc.StockOnHand(context.Background(), tenantID, productID, nil)
		require.NoError(t, err)
		assert.Equal(t, "42", dto.Quantity.String())
	})
}

func TestValuation(t *testing.T) {
	tenantID, productID := uuid.New(), uuid.New()
	now := time.Now()

	t.Run("replays weighted-average cost up to the cut-off", func(t *testing.T) {
		repo := &fakeMovementRepo{}
		seedMovement(t, repo, tenantID, productID, ledger.MovementKindGRV, "10", "60", now.Add(-3*time.Hour))
		seedMovement(t, repo, tenantID, productID, ledger.MovementKindGRV, "10", "80", now.Add(-2*time.Hour))
		seedMovement(t, repo, tenantID, productID, ledger.MovementKindSale, "-5", "70", now.Add(-time.Hour))

		svc := NewService(repo, nil, nil)
		dto, err := svc.Valuation(context.Background(), tenantID, productID, now)
		require.NoError(t, err)
		assert.Equal(t, "15.0000", dto.Quantity.StringFixed(4))
		assert.Equal(t, "70.0000", dto.UnitCost.StringFixed(4))
		assert.Equal(t, "1050.00", dto.TotalValue.StringFixed(2))
	})

	t.Run("excludes movements after the cut-off", func(t *testing.T) {
		repo := &fakeMovementRepo{}
		seedMovement(t, repo, tenantID, productID, ledger.MovementKindGRV, "10", "60", now.Add(-3*time.Hour))
		seedMovement(t, repo, tenantID, productID, ledger.MovementKindSale, "-8", "60", now.Add(time.Hour))

		svc := NewService(repo, nil, nil)
		dto, err := svc.Valuation(context.Background(), tenantID, productID, now)
		require.NoError(t, err)
		assert.Equal(t, "10.0000", dto.Quantity.StringFixed(4))
	})
}

func TestMovementHistory(t *testing.T) {
	tenantID, productID := uuid.New(), uuid.New()
	now := time.Now()

	repo := &fakeMovementRepo{}
	seedMovement(t, repo, tenantID, productID, ledger.MovementKindGRV, "10", "60", now.Add(-2*time.Hour))
	seedMovement(t, repo, tenantID, productID, ledger.MovementKindSale, "-4", "60", now.Add(-time.Hour))

	svc := NewService(repo, nil, nil)
	dto, err := svc.MovementHistory(context.Background(), tenantID, productID, nil, shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, dto.Movements, 2)
	assert.Equal(t, "6.0000", dto.NetChange.StringFixed(4))
	assert.Equal(t, "GRV", dto.Movements[0].Kind)
	assert.Equal(t, "SALE", dto.Movements[1].Kind)
}

func TestTransactionMovements(t *testing.T) {
	tenantID, productID := uuid.New(), uuid.New()
	txID := uuid.New()

	repo := &fakeMovementRepo{}
	m, err := ledger.NewMovement(tenantID, productID, ledger.MovementKindSale, d("-2"), d("60"), txID, uuid.New())
	require.NoError(t, err)
	repo.movements = append(repo.movements, *m)
	rev := m.Reversed("void", nil)
	repo.movements = append(repo.movements, *rev)

	svc := NewService(repo, nil, nil)
	out, err := svc.TransactionMovements(context.Background(), txID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Nil(t, out[0].ReversalOf)
	require.NotNil(t, out[1].ReversalOf)
	assert.Equal(t, m.ID, *out[1].ReversalOf)
}

func TestVerifyProjection(t *testing.T) {
	tenantID, productID := uuid.New(), uuid.New()
	now := time.Now()

	t.Run("consistent when cache matches the log", func(t *testing.T) {
		repo := &fakeMovementRepo{}
		cache := newFakeStockCache()
		seedMovement(t, repo, tenantID, productID, ledger.MovementKindGRV, "10", "60", now)
		key := ledger.StockKey{TenantID: tenantID, ProductID: productID}
		cache.entries[key.String()] = d("10")

		svc := NewService(repo, cache, nil)
		report, err := svc.VerifyProjection(context.Background(), tenantID, productID, nil)
		require.NoError(t, err)
		assert.True(t, report.Consistent)
		assert.True(t, report.CacheFound)
	})

	t.Run("flags a stale cache entry", func(t *testing.T) {
		repo := &fakeMovementRepo{}
		cache := newFakeStockCache()
		seedMovement(t, repo, tenantID, productID, ledger.MovementKindGRV, "10", "60", now)
		key := ledger.StockKey{TenantID: tenantID, ProductID: productID}
		cache.entries[key.String()] = d("12")

		svc := NewService(repo, cache, nil)
		report, err := svc.VerifyProjection(context.Background(), tenantID, productID, nil)
		require.NoError(t, err)
		assert.False(t, report.Consistent)
		assert.Equal(t, "12", report.Cached.String())
		assert.Equal(t, "10", report.Derived.String())
	})

	t.Run("rebuild repairs the projection", func(t *testing.T) {
		repo := &fakeMovementRepo{}
		cache := newFakeStockCache()
		seedMovement(t, repo, tenantID, productID, ledger.MovementKindGRV, "10", "60", now)
		key := ledger.StockKey{TenantID: tenantID, ProductID: productID}
		cache.entries[key.String()] = d("12")

		svc := NewService(repo, cache, nil)
		dto, err := svc.RebuildProjection(context.Background(), tenantID, productID, nil)
		require.NoError(t, err)
		assert.Equal(t, "10.0000", dto.Quantity.StringFixed(4))

		report, err := svc.VerifyProjection(context.Background(), tenantID, productID, nil)
		require.NoError(t, err)
		assert.True(t, report.Consistent)
	})
}

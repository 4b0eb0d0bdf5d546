package orchestrator

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefund(t *testing.T) {
	t.Run("partial refund restores stock and tracks the remaining quantity", func(t *testing.T) {
		env := newTestEnv(t)
		productID := env.addProduct("WIDGET", "115.00", "60.00", false)
		env.seedStock(t, productID, "10", "60.00")
		sale := env.checkout(t, productID, "5", "575.00")

		res, err := env.svc.Refund(context.Background(), RefundRequest{
			TenantID:         env.tenantID,
			OriginalHeaderID: sale.HeaderID,
			OperatorID:       env.operator,
			Lines:            []RefundLine{{ProductID: productID, Quantity: d("2")}},
			Tenders:          cashTenders("230.00"),
			Reason:           "changed mind",
		})
		require.NoError(t, err)
		require.True(t, res.Success, "reasons: %v", res.Reasons)

		assert.Equal(t, "230.00", res.TotalAmount.StringFixed(2))
		assert.Equal(t, "30.00", res.TaxAmount.StringFixed(2))
		assert.Equal(t, "7.0000", env.stockOnHand(t, productID).StringFixed(4))

		original := env.state.headers[sale.HeaderID]
		assert.Equal(t, transaction.StatusPartiallyRefunded, original.Status)

		refund := env.state.headers[res.HeaderID]
		assert.Equal(t, transaction.TypeRefund, refund.Type)
		require.NotNil(t, refund.OriginalHeaderID)
		assert.Equal(t, sale.HeaderID, *refund.OriginalHeaderID)
	})

	t.Run("refunding the rest marks the original fully refunded", func(t *testing.T) {
		env := newTestEnv(t)
		productID := env.addProduct("WIDGET", "115.00", "60.00", false)
		env.seedStock(t, productID, "10", "60.00")
		sale := env.checkout(t, productID, "5", "575.00")

		refund := func(qty, tendered string) *Result {
			res, err := env.svc.Refund(context.Background(), RefundRequest{
				TenantID:         env.tenantID,
				OriginalHeaderID: sale.HeaderID,
				OperatorID:       env.operator,
				Lines:            []RefundLine{{ProductID: productID, Quantity: d(qty)}},
				Tenders:          cashTenders(tendered),
				Reason:           "changed mind",
			})
			require.NoError(t, err)
			return res
		}

		require.True(t, refund("2", "230.00").Success)
		require.True(t, refund("3", "345.00").Success)

		original := env.state.headers[sale.HeaderID]
		assert.Equal(t, transaction.StatusRefunded, original.Status)
		assert.Equal(t, "10.0000", env.stockOnHand(t, productID).StringFixed(4))

		// A fully refunded original is terminal; a further refund is
		// rejected on its state before any quantity arithmetic.
		over := refund("1", "115.00")
		assert.False(t, over.Success)
		assert.Contains(t, over.Reasons[0], "cannot be refunded")
	})

	t.Run("refunds the effective discounted price", func(t *testing.T) {
		env := newTestEnv(t)
		productID := env.addProduct("WIDGET", "115.00", "60.00", false)
		env.seedStock(t, productID, "10", "60.00")

		sale, err := env.svc.Checkout(context.Background(), CheckoutRequest{
			TenantID:   env.tenantID,
			OperatorID: env.operator,
			Lines:      []CheckoutLine{{ProductID: productID, Quantity: d("1"), LineDiscount: d("11.50")}},
			Tenders:    cashTenders("103.50"),
		})
		require.NoError(t, err)
		require.True(t, sale.Success, "reasons: %v", sale.Reasons)

		res, err := env.svc.Refund(context.Background(), RefundRequest{
			TenantID:         env.tenantID,
			OriginalHeaderID: sale.HeaderID,
			OperatorID:       env.operator,
			Lines:            []RefundLine{{ProductID: productID, Quantity: d("1")}},
			Tenders:          cashTenders("103.50"),
			Reason:           "faulty",
		})
		require.NoError(t, err)
		require.True(t, res.Success, "reasons: %v", res.Reasons)

		// The customer gets back what was paid, not the list price.
		assert.Equal(t, "103.50", res.TotalAmount.StringFixed(2))
		assert.Equal(t, "13.50", res.TaxAmount.StringFixed(2))
		assert.Equal(t, "90.00", res.SubtotalAmount.StringFixed(2))
	})

	t.Run("rejects refunding more than was sold", func(t *testing.T) {
		env := newTestEnv(t)
		productID := env.addProduct("WIDGET", "115.00", "60.00", false)
		env.seedStock(t, productID, "10", "60.00")
		sale := env.checkout(t, productID, "2", "230.00")

		res, err := env.svc.Refund(context.Background(), RefundRequest{
			TenantID:         env.tenantID,
			OriginalHeaderID: sale.HeaderID,
			OperatorID:       env.operator,
			Lines:            []RefundLine{{ProductID: productID, Quantity: d("3")}},
			Tenders:          cashTenders("345.00"),
			Reason:           "fraud attempt",
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Reasons[0], "exceeds the remaining quantity")
		assert.Equal(t, "8.0000", env.stockOnHand(t, productID).StringFixed(4))
	})

	t.Run("restores stock into the batches the sale drew from", func(t *testing.T) {
		env := newTestEnv(t)
		productID := env.addProduct("WIDGET", "115.00", "60.00", false)
		batchA := uuid.New()
		batchB := uuid.New()
		env.seedBatchStock(t, productID, batchA, "5", "60.00")
		env.seedBatchStock(t, productID, batchB, "5", "60.00")

		sale, err := env.svc.Checkout(context.Background(), CheckoutRequest{
			TenantID:   env.tenantID,
			OperatorID: env.operator,
			Lines: []CheckoutLine{
				{ProductID: productID, Quantity: d("2"), BatchID: &batchA},
				{ProductID: productID, Quantity: d("1"), BatchID: &batchB},
			},
			Tenders: cashTenders("345.00"),
		})
		require.NoError(t, err)
		require.True(t, sale.Success, "reasons: %v", sale.Reasons)
		require.Equal(t, "3.0000", env.batchOnHand(t, productID, batchA).StringFixed(4))
		require.Equal(t, "4.0000", env.batchOnHand(t, productID, batchB).StringFixed(4))

		// Returning the unit that came from batch B restores batch B,
		// not whichever batch happened to appear first on the sale.
		res, err := env.svc.Refund(context.Background(), RefundRequest{
			TenantID:         env.tenantID,
			OriginalHeaderID: sale.HeaderID,
			OperatorID:       env.operator,
			Lines:            []RefundLine{{ProductID: productID, Quantity: d("1"), BatchID: &batchB}},
			Tenders:          cashTenders("115.00"),
			Reason:           "changed mind",
		})
		require.NoError(t, err)
		require.True(t, res.Success, "reasons: %v", res.Reasons)

		assert.Equal(t, "3.0000", env.batchOnHand(t, productID, batchA).StringFixed(4))
		assert.Equal(t, "5.0000", env.batchOnHand(t, productID, batchB).StringFixed(4))

		var refundBatches []uuid.UUID
		for _, m := range env.state.movements {
			if m.SourceTransactionID == res.HeaderID {
				require.NotNil(t, m.BatchID)
				refundBatches = append(refundBatches, *m.BatchID)
			}
		}
		assert.Equal(t, []uuid.UUID{batchB}, refundBatches)

		// A refund without a batch selector settles against the open
		// lines in order, which only batch A still has.
		rest, err := env.svc.Refund(context.Background(), RefundRequest{
			TenantID:         env.tenantID,
			OriginalHeaderID: sale.HeaderID,
			OperatorID:       env.operator,
			Lines:            []RefundLine{{ProductID: productID, Quantity: d("2")}},
			Tenders:          cashTenders("230.00"),
			Reason:           "changed mind",
		})
		require.NoError(t, err)
		require.True(t, rest.Success, "reasons: %v", rest.Reasons)

		assert.Equal(t, "5.0000", env.batchOnHand(t, productID, batchA).StringFixed(4))
		assert.Equal(t, "5.0000", env.batchOnHand(t, productID, batchB).StringFixed(4))
		assert.Equal(t, transaction.StatusRefunded, env.state.headers[sale.HeaderID].Status)
	})

	t.Run("unit refunds settle the full line total across installments", func(t *testing.T) {
		env := newTestEnv(t)
		productID := env.addProduct("WIDGET", "115.00", "60.00", false)
		env.seedStock(t, productID, "10", "60.00")

		// Three units for a line total of 100.00: no per-unit cent
		// amount divides it evenly.
		sale, err := env.svc.Checkout(context.Background(), CheckoutRequest{
			TenantID:   env.tenantID,
			OperatorID: env.operator,
			Lines:      []CheckoutLine{{ProductID: productID, Quantity: d("3"), LineDiscount: d("245.00")}},
			Tenders:    cashTenders("100.00"),
		})
		require.NoError(t, err)
		require.True(t, sale.Success, "reasons: %v", sale.Reasons)

		refund := func(tendered string) *Result {
			res, err := env.svc.Refund(context.Background(), RefundRequest{
				TenantID:         env.tenantID,
				OriginalHeaderID: sale.HeaderID,
				OperatorID:       env.operator,
				Lines:            []RefundLine{{ProductID: productID, Quantity: d("1")}},
				Tenders:          cashTenders(tendered),
				Reason:           "changed mind",
			})
			require.NoError(t, err)
			require.True(t, res.Success, "reasons: %v", res.Reasons)
			return res
		}

		first := refund("33.33")
		second := refund("33.33")
		third := refund("33.34")

		assert.Equal(t, "33.33", first.TotalAmount.StringFixed(2))
		assert.Equal(t, "33.33", second.TotalAmount.StringFixed(2))
		// The last unit carries the rounding remainder so the three
		// refunds return every cent that was paid.
		assert.Equal(t, "33.34", third.TotalAmount.StringFixed(2))
		paid := first.TotalAmount.Add(second.TotalAmount).Add(third.TotalAmount)
		assert.Equal(t, "100.00", paid.StringFixed(2))
		assert.Equal(t, transaction.StatusRefunded, env.state.headers[sale.HeaderID].Status)
	})

	t.Run("returned serial unit becomes sellable again", func(t *testing.T) {
		env := newTestEnv(t)
		productID := env.addProduct("PHONE", "11500.00", "8000.00", true)
		unitID := env.addSerialUnit(t, productID, "SN-001")

		sale, err := env.svc.Checkout(context.Background(), CheckoutRequest{
			TenantID:   env.tenantID,
			OperatorID: env.operator,
			Lines:      []CheckoutLine{{ProductID: productID, Quantity: d("1"), SerialUnitID: &unitID}},
			Tenders:    cashTenders("11500.00"),
		})
		require.NoError(t, err)
		require.True(t, sale.Success)

		res, err := env.svc.Refund(context.Background(), RefundRequest{
			TenantID:         env.tenantID,
			OriginalHeaderID: sale.HeaderID,
			OperatorID:       env.operator,
			Lines:            []RefundLine{{ProductID: productID, Quantity: d("1"), SerialUnitID: &unitID}},
			Tenders:          cashTenders("11500.00"),
			Reason:           "buyer remorse",
		})
		require.NoError(t, err)
		require.True(t, res.Success, "reasons: %v", res.Reasons)

		unit := env.state.serials[unitID]
		assert.Equal(t, lifecycle.SerialStatusAssigned, unit.Status)
		assert.Equal(t, "1.0000", env.stockOnHand(t, productID).StringFixed(4))
	})

	t.Run("damaged serial unit is destroyed with a write-off", func(t *testing.T) {
		env := newTestEnv(t)
		productID := env.addProduct("PHONE", "11500.00", "8000.00", true)
		unitID := env.addSerialUnit(t, productID, "SN-001")

		sale, err := env.svc.Checkout(context.Background(), CheckoutRequest{
			TenantID:   env.tenantID,
			OperatorID: env.operator,
			Lines:      []CheckoutLine{{ProductID: productID, Quantity: d("1"), SerialUnitID: &unitID}},
			Tenders:    cashTenders("11500.00"),
		})
		require.NoError(t, err)
		require.True(t, sale.Success)

		res, err := env.svc.Refund(context.Background(), RefundRequest{
			TenantID:         env.tenantID,
			OriginalHeaderID: sale.HeaderID,
			OperatorID:       env.operator,
			Lines: []RefundLine{{
				ProductID:    productID,
				Quantity:     d("1"),
				SerialUnitID: &unitID,
				Damaged:      true,
				DamageReason: "cracked screen",
			}},
			Tenders: cashTenders("11500.00"),
			Reason:  "damaged on return",
		})
		require.NoError(t, err)
		require.True(t, res.Success, "reasons: %v", res.Reasons)

		unit := env.state.serials[unitID]
		assert.Equal(t, lifecycle.SerialStatusDestroyed, unit.Status)
		assert.Equal(t, "cracked screen", unit.DestroyedReason)

		// The refund brings the quantity in, the write-off takes it out.
		assert.Equal(t, "0.0000", env.stockOnHand(t, productID).StringFixed(4))
		var kinds []ledger.MovementKind
		for _, m := range env.state.movements {
			if m.SourceTransactionID == res.HeaderID {
				kinds = append(kinds, m.Kind)
			}
		}
		assert.ElementsMatch(t, []ledger.MovementKind{ledger.MovementKindRefund, ledger.MovementKindAdjustment}, kinds)
	})

	t.Run("cancelled transactions cannot be refunded", func(t *testing.T) {
		env := newTestEnv(t)
		productID := env.addProduct("WIDGET", "115.00", "60.00", false)
		env.seedStock(t, productID, "10", "60.00")
		sale := env.checkout(t, productID, "1", "115.00")

		_, err := env.svc.Cancel(context.Background(), CancelRequest{
			TenantID:   env.tenantID,
			HeaderID:   sale.HeaderID,
			OperatorID: env.operator,
			Reason:     "void",
		})
		require.NoError(t, err)

		res, err := env.svc.Refund(context.Background(), RefundRequest{
			TenantID:         env.tenantID,
			OriginalHeaderID: sale.HeaderID,
			OperatorID:       env.operator,
			Lines:            []RefundLine{{ProductID: productID, Quantity: d("1")}},
			Tenders:          cashTenders("115.00"),
			Reason:           "too late",
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Reasons[0], "cannot be refunded")
	})
}

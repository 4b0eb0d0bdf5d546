package calculation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestNewTaxRate(t *testing.T) {
	t.Run("accepts valid rates", func(t *testing.T) {
		r, err := NewTaxRate(d("0.15"))
		require.NoError(t, err)
		assert.Equal(t, "1.15", r.Divisor().String())
	})

	t.Run("accepts zero rate", func(t *testing.T) {
		_, err := NewTaxRate(decimal.Zero)
		assert.NoError(t, err)
	})

	t.Run("rejects negative rate", func(t *testing.T) {
		_, err := NewTaxRate(d("-0.1"))
		assert.Error(t, err)
	})

	t.Run("rejects rate of one or more", func(t *testing.T) {
		_, err := NewTaxRate(decimal.NewFromInt(1))
		assert.Error(t, err)
	})
}

func TestLineItem(t *testing.T) {
	rate := DefaultRate()

	t.Run("sell 5 units at R115.00 incl VAT", func(t *testing.T) {
		amounts, err := LineItem(d("115.00"), d("5"), rate)
		require.NoError(t, err)
		assert.Equal(t, "575.00", amounts.Total.StringFixed(2))
		assert.Equal(t, "75.00", amounts.Tax.StringFixed(2))
		assert.Equal(t, "500.00", amounts.Subtotal.StringFixed(2))
	})

	t.Run("subtotal plus tax equals total", func(t *testing.T) {
		amounts, err := LineItem(d("99.99"), d("3"), rate)
		require.NoError(t, err)
		assert.True(t, amounts.Subtotal.Add(amounts.Tax).Equal(amounts.Total))
	})

	t.Run("zero rate yields zero tax", func(t *testing.T) {
		zero := MustTaxRate(decimal.Zero)
		amounts, err := LineItem(d("100.00"), d("2"), zero)
		require.NoError(t, err)
		assert.True(t, amounts.Tax.IsZero())
		assert.True(t, amounts.Subtotal.Equal(amounts.Total))
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		_, err := LineItem(d("115.00"), decimal.Zero, rate)
		assert.Error(t, err)

		_, err = LineItem(d("115.00"), d("-1"), rate)
		assert.Error(t, err)
	})

	t.Run("rejects negative price", func(t *testing.T) {
		_, err := LineItem(d("-115.00"), d("1"), rate)
		assert.Error(t, err)
	})
}

func TestApplyLineDiscount(t *testing.T) {
	rate := DefaultRate()

	t.Run("10 percent discount on R115.00 recomputes tax on new total", func(t *testing.T) {
		amounts, err := ApplyLineDiscount(d("115.00"), d("11.50"), rate)
		require.NoError(t, err)
		assert.Equal(t, "103.50", amounts.Total.StringFixed(2))
		assert.Equal(t, "13.50", amounts.Tax.StringFixed(2))
		// Subtotal is 90.00, not 100.00 minus 10 percent of the old subtotal
		assert.Equal(t, "90.00", amounts.Subtotal.StringFixed(2))
	})

	t.Run("full discount zeroes the line", func(t *testing.T) {
		amounts, err := ApplyLineDiscount(d("115.00"), d("115.00"), rate)
		require.NoError(t, err)
		assert.True(t, amounts.Total.IsZero())
		assert.True(t, amounts.Tax.IsZero())
	})

	t.Run("rejects discount exceeding base", func(t *testing.T) {
		_, err := ApplyLineDiscount(d("115.00"), d("115.01"), rate)
		assert.Error(t, err)
	})

	t.Run("rejects negative discount", func(t *testing.T) {
		_, err := ApplyLineDiscount(d("115.00"), d("-1.00"), rate)
		assert.Error(t, err)
	})
}

func TestProrateHeaderDiscount(t *testing.T) {
	t.Run("R50 across R115 and R85 lines", func(t *testing.T) {
		line1 := uuid.New()
		line2 := uuid.New()
		allocations, err := ProrateHeaderDiscount(d("50.00"), []ProrationLine{
			{ID: line1, Total: d("115.00")},
			{ID: line2, Total: d("85.00")},
		})
		require.NoError(t, err)
		assert.Equal(t, "28.75", allocations[line1].StringFixed(2))
		assert.Equal(t, "21.25", allocations[line2].StringFixed(2))
	})

	t.Run("allocations always sum exactly to the header discount", func(t *testing.T) {
		lines := []ProrationLine{
			{ID: uuid.New(), Total: d("33.33")},
			{ID: uuid.New(), Total: d("33.33")},
			{ID: uuid.New(), Total: d("33.34")},
		}
		discount := d("10.00")
		allocations, err := ProrateHeaderDiscount(discount, lines)
		require.NoError(t, err)

		sum := decimal.Zero
		for _, a := range allocations {
			sum = sum.Add(a)
		}
		assert.True(t, sum.Equal(discount), "sum %s != discount %s", sum, discount)
	})

	t.Run("last line by input order absorbs the remainder", func(t *testing.T) {
		first := uuid.New()
		last := uuid.New()
		allocations, err := ProrateHeaderDiscount(d("0.01"), []ProrationLine{
			{ID: first, Total: d("100.00")},
			{ID: last, Total: d("100.00")},
		})
		require.NoError(t, err)
		// 0.01 * 100/200 rounds up to 0.01 for the first line, leaving
		// nothing for the last.
		assert.Equal(t, "0.01", allocations[first].StringFixed(2))
		assert.Equal(t, "0.00", allocations[last].StringFixed(2))
	})

	t.Run("no allocation goes negative when rounding runs ahead", func(t *testing.T) {
		// 0.02 over four equal lines rounds each quarter-cent share up
		// to a cent; without capping, the first two cents exhaust the
		// discount and the last line would owe money back.
		lines := []ProrationLine{
			{ID: uuid.New(), Total: d("25.00")},
			{ID: uuid.New(), Total: d("25.00")},
			{ID: uuid.New(), Total: d("25.00")},
			{ID: uuid.New(), Total: d("25.00")},
		}
		discount := d("0.02")
		allocations, err := ProrateHeaderDiscount(discount, lines)
		require.NoError(t, err)

		sum := decimal.Zero
		for _, line := range lines {
			a := allocations[line.ID]
			assert.False(t, a.IsNegative(), "line allocated %s", a)
			sum = sum.Add(a)
		}
		assert.True(t, sum.Equal(discount), "sum %s != discount %s", sum, discount)
	})

	t.Run("zero grand total allocates zero everywhere", func(t *testing.T) {
		l1 := uuid.New()
		allocations, err := ProrateHeaderDiscount(decimal.Zero, []ProrationLine{
			{ID: l1, Total: decimal.Zero},
		})
		require.NoError(t, err)
		assert.True(t, allocations[l1].IsZero())
	})

	t.Run("rejects discount above grand total", func(t *testing.T) {
		_, err := ProrateHeaderDiscount(d("201.00"), []ProrationLine{
			{ID: uuid.New(), Total: d("115.00")},
			{ID: uuid.New(), Total: d("85.00")},
		})
		assert.Error(t, err)
	})

	t.Run("rejects empty lines", func(t *testing.T) {
		_, err := ProrateHeaderDiscount(d("10.00"), nil)
		assert.Error(t, err)
	})
}

func TestReconcileRounding(t *testing.T) {
	t.Run("zero delta when totals agree", func(t *testing.T) {
		assert.True(t, ReconcileRounding(d("575.00"), d("575.00")).IsZero())
	})

	t.Run("returns signed cent delta", func(t *testing.T) {
		assert.Equal(t, "0.01", ReconcileRounding(d("575.01"), d("575.00")).StringFixed(2))
		assert.Equal(t, "-0.02", ReconcileRounding(d("574.98"), d("575.00")).StringFixed(2))
	})
}

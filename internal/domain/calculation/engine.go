// Package calculation is the single place where VAT extraction, discount
// application, proration, and rounding reconciliation are computed. Every
// other component calls into it instead of re-deriving the formulas.
//
// All functions are pure: fixed-point decimal in, explicit error out, no
// side effects. Amounts are rounded to 2 decimal places, half away from zero.
package calculation

import (
	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DefaultVATRate is the standard South African VAT rate (15%)
var DefaultVATRate = decimal.NewFromFloat(0.15)

// TaxRate is a validated fractional tax rate (e.g. 0.15 for 15% VAT)
type TaxRate struct {
	rate decimal.Decimal
}

// NewTaxRate creates a TaxRate. The rate must be in [0, 1).
func NewTaxRate(rate decimal.Decimal) (TaxRate, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return TaxRate{}, shared.NewDomainError("OUT_OF_RANGE", "Tax rate must be in [0, 1)")
	}
	return TaxRate{rate: rate}, nil
}

// MustTaxRate creates a TaxRate, panicking on an invalid rate. Use only for
// compile-time constants.
func MustTaxRate(rate decimal.Decimal) TaxRate {
	r, err := NewTaxRate(rate)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRate returns the default 15% VAT rate
func DefaultRate() TaxRate {
	return TaxRate{rate: DefaultVATRate}
}

// Rate returns the fractional rate
func (r TaxRate) Rate() decimal.Decimal {
	return r.rate
}

// Divisor returns 1 + rate, the divisor used to extract tax from a
// VAT-inclusive amount
func (r TaxRate) Divisor() decimal.Decimal {
	return decimal.NewFromInt(1).Add(r.rate)
}

// Amounts is the result of a line-level calculation
type Amounts struct {
	Subtotal decimal.Decimal // Total excluding tax
	Tax      decimal.Decimal // Extracted tax portion
	Total    decimal.Decimal // VAT-inclusive total
}

// round2 applies the system rounding policy: 2 decimals, half away from zero
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// extractTax pulls the tax portion out of a VAT-inclusive total by division.
// Tax is never added on top; the price already contains it.
func extractTax(totalInclTax decimal.Decimal, rate TaxRate) decimal.Decimal {
	return round2(totalInclTax.Sub(totalInclTax.Div(rate.Divisor())))
}

// LineItem computes subtotal, tax, and total for a quantity of a
// VAT-inclusive unit price.
func LineItem(unitPriceInclTax, qty decimal.Decimal, rate TaxRate) (Amounts, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return Amounts{}, shared.NewDomainError("OUT_OF_RANGE", "Quantity must be positive")
	}
	if unitPriceInclTax.IsNegative() {
		return Amounts{}, shared.NewDomainError("OUT_OF_RANGE", "Unit price cannot be negative")
	}

	total := round2(unitPriceInclTax.Mul(qty))
	tax := extractTax(total, rate)
	return Amounts{
		Subtotal: total.Sub(tax),
		Tax:      tax,
		Total:    total,
	}, nil
}

// ApplyLineDiscount discounts a VAT-inclusive line total and recomputes the
// tax on the discounted total. Tax always follows the discounted amount; it
// is never prorated from the pre-discount tax.
func ApplyLineDiscount(originalTotal, discount decimal.Decimal, rate TaxRate) (Amounts, error) {
	if originalTotal.IsNegative() {
		return Amounts{}, shared.NewDomainError("OUT_OF_RANGE", "Original total cannot be negative")
	}
	if discount.IsNegative() {
		return Amounts{}, shared.NewDomainError("OUT_OF_RANGE", "Discount cannot be negative")
	}
	if discount.GreaterThan(originalTotal) {
		return Amounts{}, shared.NewDomainError("OUT_OF_RANGE", "Discount cannot exceed the discounted base")
	}

	newTotal := round2(originalTotal.Sub(discount))
	tax := extractTax(newTotal, rate)
	return Amounts{
		Subtotal: newTotal.Sub(tax),
		Tax:      tax,
		Total:    newTotal,
	}, nil
}

// ProrationLine is one line's share basis for header-discount proration
type ProrationLine struct {
	ID    uuid.UUID
	Total decimal.Decimal
}

// ProrateHeaderDiscount allocates a header-level discount across lines in
// proportion to each line's share of the grand total. Lines are processed in
// input order and the last line absorbs the rounding remainder, so the
// allocated amounts always sum exactly to the header discount.
func ProrateHeaderDiscount(headerDiscount decimal.Decimal, lines []ProrationLine) (map[uuid.UUID]decimal.Decimal, error) {
	if headerDiscount.IsNegative() {
		return nil, shared.NewDomainError("OUT_OF_RANGE", "Header discount cannot be negative")
	}
	if len(lines) == 0 {
		return nil, shared.NewDomainError("OUT_OF_RANGE", "At least one line is required")
	}

	grandTotal := decimal.Zero
	for _, line := range lines {
		if line.Total.IsNegative() {
			return nil, shared.NewDomainError("OUT_OF_RANGE", "Line total cannot be negative")
		}
		grandTotal = grandTotal.Add(line.Total)
	}
	if headerDiscount.GreaterThan(grandTotal) {
		return nil, shared.NewDomainError("OUT_OF_RANGE", "Header discount cannot exceed the sum of line totals")
	}

	allocations := make(map[uuid.UUID]decimal.Decimal, len(lines))
	if grandTotal.IsZero() {
		for _, line := range lines {
			allocations[line.ID] = decimal.Zero
		}
		return allocations, nil
	}

	allocated := decimal.Zero
	for i, line := range lines {
		if i == len(lines)-1 {
			// Last line by input order absorbs the remainder.
			allocations[line.ID] = headerDiscount.Sub(allocated)
			break
		}
		share := round2(headerDiscount.Mul(line.Total).Div(grandTotal))
		// Half-up rounding can run ahead of the discount (0.02 over
		// four equal lines rounds to 0.01 each); cap each share at
		// what is still unallocated so the last line never goes
		// negative.
		if left := headerDiscount.Sub(allocated); share.GreaterThan(left) {
			share = left
		}
		allocations[line.ID] = share
		allocated = allocated.Add(share)
	}
	return allocations, nil
}

// ReconcileRounding returns the cent-level delta between the expected header
// total and the computed sum of its lines. The caller folds the adjustment
// into the tax amount, never into the subtotal, so the header total always
// equals the literal sum of its lines.
func ReconcileRounding(expectedTotal, computedTotal decimal.Decimal) decimal.Decimal {
	return round2(expectedTotal.Sub(computedTotal))
}

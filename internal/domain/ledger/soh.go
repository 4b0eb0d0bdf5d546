package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ComputeStockOnHand sums signed quantities over a movement history.
// Reversals are already negative entries in the history, so nothing is
// ever excluded: the sum over the full log is the stock on hand.
func ComputeStockOnHand(movements []Movement) decimal.Decimal {
	total := decimal.Zero
	for i := range movements {
		total = total.Add(movements[i].Quantity)
	}
	return total
}

// Valuation is the replayed inventory position at a point in time
type Valuation struct {
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal // Weighted-average cost
	TotalValue decimal.Decimal
	AsOf       time.Time
}

// ReplayValuation recomputes the weighted-average cost position by replaying
// movements in chronological order up to asOf. Outbound movements consume at
// the running average and leave the unit cost unchanged; inbound movements
// blend their unit value into the average. The replay is deterministic for
// any historical instant, which is what the audit requirement demands.
func ReplayValuation(movements []Movement, asOf time.Time) Valuation {
	ordered := make([]Movement, len(movements))
	copy(ordered, movements)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MovementDate.Before(ordered[j].MovementDate)
	})

	qty := decimal.Zero
	unitCost := decimal.Zero

	for i := range ordered {
		m := &ordered[i]
		if m.MovementDate.After(asOf) {
			break
		}

		newQty := qty.Add(m.Quantity)
		if m.Quantity.IsPositive() {
			if newQty.IsPositive() {
				// Blend: (existing value + incoming value) / new quantity.
				// A non-positive starting quantity contributes nothing,
				// so the average restarts at the incoming unit value.
				existing := qty
				if existing.IsNegative() {
					existing = decimal.Zero
				}
				totalValue := existing.Mul(unitCost).Add(m.Quantity.Mul(m.UnitValue))
				base := existing.Add(m.Quantity)
				unitCost = totalValue.Div(base)
			}
		}
		// Outbound consumes at the running average; cost unchanged.
		qty = newQty
		if qty.IsZero() {
			unitCost = decimal.Zero
		}
	}

	return Valuation{
		Quantity:   qty,
		UnitCost:   unitCost.Round(4),
		TotalValue: qty.Mul(unitCost).Round(2),
		AsOf:       asOf,
	}
}

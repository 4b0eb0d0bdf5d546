package ledgerquery

import (
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// StockOnHandDTO is the derived quantity for a (product, batch) key
type StockOnHandDTO struct {
	ProductID uuid.UUID       `json:"product_id"`
	BatchID   *uuid.UUID      `json:"batch_id,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	AsOf      time.Time       `json:"as_of"`
}

// ValuationDTO is the weighted-average position of a product at a point in time
type ValuationDTO struct {
	ProductID  uuid.UUID       `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	TotalValue decimal.Decimal `json:"total_value"`
	AsOf       time.Time       `json:"as_of"`
}

// MovementDTO is one ledger entry in a history listing
type MovementDTO struct {
	ID                  uuid.UUID       `json:"id"`
	ProductID           uuid.UUID       `json:"product_id"`
	BatchID             *uuid.UUID      `json:"batch_id,omitempty"`
	SerialUnitID        *uuid.UUID      `json:"serial_unit_id,omitempty"`
	Kind                string          `json:"kind"`
	Quantity            decimal.Decimal `json:"quantity"`
	UnitValue           decimal.Decimal `json:"unit_value"`
	SourceTransactionID uuid.UUID       `json:"source_transaction_id"`
	ReversalOf          *uuid.UUID      `json:"reversal_of,omitempty"`
	Reference           string          `json:"reference,omitempty"`
	Reason              string          `json:"reason,omitempty"`
	MovementDate        time.Time       `json:"movement_date"`
}

// MovementHistoryDTO is a page of ledger entries with the running total
type MovementHistoryDTO struct {
	Movements []MovementDTO   `json:"movements"`
	NetChange decimal.Decimal `json:"net_change"`
}

// ProjectionReportDTO compares the cached projection against a fresh replay
// of the log
type ProjectionReportDTO struct {
	ProductID  uuid.UUID       `json:"product_id"`
	BatchID    *uuid.UUID      `json:"batch_id,omitempty"`
	Cached     decimal.Decimal `json:"cached"`
	CacheFound bool            `json:"cache_found"`
	Derived    decimal.Decimal `json:"derived"`
	Consistent bool            `json:"consistent"`
}

func toMovementDTO(m *ledger.Movement) MovementDTO {
	return MovementDTO{
		ID:                  m.ID,
		ProductID:           m.ProductID,
		BatchID:             m.BatchID,
		SerialUnitID:        m.SerialUnitID,
		Kind:                m.Kind.String(),
		Quantity:            m.Quantity,
		UnitValue:           m.UnitValue,
		SourceTransactionID: m.SourceTransactionID,
		ReversalOf:          m.ReversalOf,
		Reference:           m.Reference,
		Reason:              m.Reason,
		MovementDate:        m.MovementDate,
	}
}

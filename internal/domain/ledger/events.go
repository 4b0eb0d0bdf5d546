package ledger

import (
	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event types for the ledger
const (
	EventTypeMovementAppended = "ledger.movement.appended"
	EventTypeLedgerReversed   = "ledger.reversed"
)

// MovementAppendedEvent is raised after a movement lands durably
type MovementAppendedEvent struct {
	shared.BaseDomainEvent
	ProductID           uuid.UUID       `json:"product_id"`
	BatchID             *uuid.UUID      `json:"batch_id,omitempty"`
	Kind                MovementKind    `json:"kind"`
	Quantity            decimal.Decimal `json:"quantity"`
	SourceTransactionID uuid.UUID       `json:"source_transaction_id"`
	IsReversal          bool            `json:"is_reversal"`
}

// NewMovementAppendedEvent creates a MovementAppendedEvent from a movement
func NewMovementAppendedEvent(m *Movement) *MovementAppendedEvent {
	return &MovementAppendedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypeMovementAppended, m.ID, "Movement", m.TenantID),
		ProductID:           m.ProductID,
		BatchID:             m.BatchID,
		Kind:                m.Kind,
		Quantity:            m.Quantity,
		SourceTransactionID: m.SourceTransactionID,
		IsReversal:          m.IsReversal(),
	}
}

// LedgerReversedEvent is raised after all movements of a transaction have
// been compensated
type LedgerReversedEvent struct {
	shared.BaseDomainEvent
	SourceTransactionID uuid.UUID   `json:"source_transaction_id"`
	ReversalMovementIDs []uuid.UUID `json:"reversal_movement_ids"`
	Reason              string      `json:"reason"`
}

// NewLedgerReversedEvent creates a LedgerReversedEvent
func NewLedgerReversedEvent(tenantID, sourceTransactionID uuid.UUID, reversalIDs []uuid.UUID, reason string) *LedgerReversedEvent {
	return &LedgerReversedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypeLedgerReversed, sourceTransactionID, "Ledger", tenantID),
		SourceTransactionID: sourceTransactionID,
		ReversalMovementIDs: reversalIDs,
		Reason:              reason,
	}
}

package transaction

import (
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event types for transactions
const (
	EventTypeCompleted = "transaction.completed"
	EventTypeCancelled = "transaction.cancelled"
	EventTypeRefunded  = "transaction.refunded"
)

// CompletedEvent is raised when a header posts
type CompletedEvent struct {
	shared.BaseDomainEvent
	Number      string          `json:"number"`
	TxType      Type            `json:"transaction_type"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	LineCount   int             `json:"line_count"`
}

// NewCompletedEvent creates a CompletedEvent
func NewCompletedEvent(h *Header) *CompletedEvent {
	return &CompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCompleted, h.ID, "TransactionHeader", h.TenantID),
		Number:          h.Number,
		TxType:          h.Type,
		TotalAmount:     h.TotalAmount,
		LineCount:       len(h.Details),
	}
}

// CancelledEvent is raised when a completed header is cancelled
type CancelledEvent struct {
	shared.BaseDomainEvent
	Number string `json:"number"`
	Reason string `json:"reason"`
}

// NewCancelledEvent creates a CancelledEvent
func NewCancelledEvent(h *Header, reason string) *CancelledEvent {
	return &CancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCancelled, h.ID, "TransactionHeader", h.TenantID),
		Number:          h.Number,
		Reason:          reason,
	}
}

// RefundedEvent is raised when refund progress is recorded on a header
type RefundedEvent struct {
	shared.BaseDomainEvent
	Number string `json:"number"`
	Full   bool   `json:"full"`
}

// NewRefundedEvent creates a RefundedEvent
func NewRefundedEvent(h *Header, full bool) *RefundedEvent {
	return &RefundedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRefunded, h.ID, "TransactionHeader", h.TenantID),
		Number:          h.Number,
		Full:            full,
	}
}

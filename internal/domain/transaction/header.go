package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Type represents the kind of commercial event a header records
type Type string

const (
	// TypeSale is a checkout
	TypeSale Type = "SALE"
	// TypeRefund is a compensating document against a sale
	TypeRefund Type = "REFUND"
	// TypeTransfer is an inter-location stock transfer
	TypeTransfer Type = "TRANSFER"
	// TypeReceipt is a goods receipt (GRV)
	TypeReceipt Type = "RECEIPT"
)

// IsValid returns true if the transaction type is valid
func (t Type) IsValid() bool {
	switch t {
	case TypeSale, TypeRefund, TypeTransfer, TypeReceipt:
		return true
	}
	return false
}

// String returns the string representation of Type
func (t Type) String() string {
	return string(t)
}

// Status represents the posting state of a transaction header
type Status string

const (
	// StatusPending is a header under construction, not yet posted
	StatusPending Status = "PENDING"
	// StatusCompleted is a fully posted header
	StatusCompleted Status = "COMPLETED"
	// StatusCancelled marks a completed header whose movements were reversed
	StatusCancelled Status = "CANCELLED"
	// StatusPartiallyRefunded marks a header with some lines refunded
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
	// StatusRefunded marks a fully refunded header
	StatusRefunded Status = "REFUNDED"
)

// IsValid returns true if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled, StatusPartiallyRefunded, StatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusCompleted
	case StatusCompleted:
		return target == StatusCancelled || target == StatusPartiallyRefunded || target == StatusRefunded
	case StatusPartiallyRefunded:
		return target == StatusPartiallyRefunded || target == StatusRefunded
	case StatusCancelled, StatusRefunded:
		return false // Terminal for this header; compensation creates new headers
	}
	return false
}

// centTolerance is the maximum permitted drift between total and
// subtotal + tax after rounding reconciliation
var centTolerance = decimal.NewFromFloat(0.01)

// Header is one commercial event: a sale, refund, transfer, or receipt.
// Refunds and cancellations never mutate the original header's amounts; they
// create a new compensating header referencing it via OriginalHeaderID.
type Header struct {
	shared.TenantAggregateRoot
	Number           string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_tx_tenant_number"`
	Type             Type            `gorm:"type:varchar(20);not null;index"`
	Status           Status          `gorm:"type:varchar(30);not null;index"`
	TransactionDate  time.Time       `gorm:"type:timestamptz;not null;index"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TaxAmount        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	OperatorID       *uuid.UUID      `gorm:"type:uuid"`
	OriginalHeaderID *uuid.UUID      `gorm:"type:uuid;index"` // Set on compensating documents
	Reason           string          `gorm:"type:varchar(255)"`
	Details          []Detail        `gorm:"foreignKey:HeaderID"`
}

// TableName returns the table name for GORM
func (Header) TableName() string {
	return "transaction_headers"
}

// NewHeader creates a header in PENDING state
func NewHeader(tenantID uuid.UUID, number string, txType Type) (*Header, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if number == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Transaction number cannot be empty")
	}
	if !txType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invalid transaction type")
	}
	return &Header{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Number:              number,
		Type:                txType,
		Status:              StatusPending,
		TransactionDate:     time.Now(),
		Subtotal:            decimal.Zero,
		TaxAmount:           decimal.Zero,
		DiscountAmount:      decimal.Zero,
		TotalAmount:         decimal.Zero,
	}, nil
}

// WithOperator stamps the acting user
func (h *Header) WithOperator(operatorID uuid.UUID) *Header {
	h.OperatorID = &operatorID
	return h
}

// WithOriginalHeader links a compensating document to the header it reverses
func (h *Header) WithOriginalHeader(originalID uuid.UUID) *Header {
	h.OriginalHeaderID = &originalID
	return h
}

// AddDetail appends a line to a pending header
func (h *Header) AddDetail(d *Detail) error {
	if h.Status != StatusPending {
		return shared.NewDomainError("INVALID_STATE", "Details can only be added while pending")
	}
	d.HeaderID = h.ID
	h.Details = append(h.Details, *d)
	return nil
}

// SetTotals records the calculated header amounts
func (h *Header) SetTotals(subtotal, tax, discount, total decimal.Decimal) error {
	if h.Status != StatusPending {
		return shared.NewDomainError("INVALID_STATE", "Totals can only be set while pending")
	}
	h.Subtotal = subtotal
	h.TaxAmount = tax
	h.DiscountAmount = discount
	h.TotalAmount = total
	return nil
}

// SumDetailTotals returns the literal sum of the line totals
func (h *Header) SumDetailTotals() decimal.Decimal {
	sum := decimal.Zero
	for i := range h.Details {
		sum = sum.Add(h.Details[i].LineTotal)
	}
	return sum
}

// Validate enforces the header invariants: total equals subtotal plus tax
// within one cent, and total equals the sum of the line totals exactly.
func (h *Header) Validate() error {
	if len(h.Details) == 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "Transaction requires at least one line")
	}
	if h.TotalAmount.Sub(h.Subtotal.Add(h.TaxAmount)).Abs().GreaterThan(centTolerance) {
		return shared.NewDomainError("VALIDATION_ERROR", "Total must equal subtotal plus tax within one cent")
	}
	if !h.TotalAmount.Equal(h.SumDetailTotals()) {
		return shared.NewDomainError("VALIDATION_ERROR", "Total must equal the sum of line totals")
	}
	for i := range h.Details {
		if err := h.Details[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Complete posts the header. The caller appends movements in the same atomic
// unit of work.
func (h *Header) Complete() error {
	if !h.Status.CanTransitionTo(StatusCompleted) {
		return shared.NewDomainError("INVALID_STATE", "Transaction cannot complete from "+h.Status.String())
	}
	if err := h.Validate(); err != nil {
		return err
	}
	h.Status = StatusCompleted
	h.IncrementVersion()
	h.AddDomainEvent(NewCompletedEvent(h))
	return nil
}

// MarkCancelled records that the header's movements were reversed
func (h *Header) MarkCancelled(reason string) error {
	if h.Status == StatusCancelled {
		return nil // Idempotent: cancelling twice is a no-op
	}
	if !h.Status.CanTransitionTo(StatusCancelled) {
		return shared.NewDomainError("INVALID_STATE", "Transaction cannot be cancelled from "+h.Status.String())
	}
	h.Status = StatusCancelled
	h.Reason = reason
	h.IncrementVersion()
	h.AddDomainEvent(NewCancelledEvent(h, reason))
	return nil
}

// MarkRefunded records refund progress against this header
func (h *Header) MarkRefunded(full bool) error {
	target := StatusPartiallyRefunded
	if full {
		target = StatusRefunded
	}
	if !h.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE", "Transaction cannot be refunded from "+h.Status.String())
	}
	h.Status = target
	h.IncrementVersion()
	h.AddDomainEvent(NewRefundedEvent(h, full))
	return nil
}

// IsTerminal returns true when no further status changes are permitted
func (h *Header) IsTerminal() bool {
	return h.Status == StatusCancelled || h.Status == StatusRefunded
}

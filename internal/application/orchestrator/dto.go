package orchestrator

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutLine is one requested sale line. Serialized products must reference
// the specific unit being sold and carry a quantity of one.
type CheckoutLine struct {
	ProductID    uuid.UUID       `json:"product_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity" validate:"required"`
	BatchID      *uuid.UUID      `json:"batch_id,omitempty"`
	SerialUnitID *uuid.UUID      `json:"serial_unit_id,omitempty"`
	// LineDiscount is a VAT-inclusive amount taken off this line before
	// any header discount is prorated
	LineDiscount decimal.Decimal `json:"line_discount"`
}

// Tender is one payment leg of a checkout or refund
type Tender struct {
	Method TenderMethod    `json:"method" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// CheckoutRequest describes a sale to be posted atomically
type CheckoutRequest struct {
	TenantID   uuid.UUID      `json:"tenant_id" validate:"required"`
	OperatorID uuid.UUID      `json:"operator_id" validate:"required"`
	CustomerID *uuid.UUID     `json:"customer_id,omitempty"`
	Lines      []CheckoutLine `json:"lines" validate:"required,min=1,dive"`
	// HeaderDiscount is a VAT-inclusive amount prorated across lines
	HeaderDiscount decimal.Decimal `json:"header_discount"`
	Tenders        []Tender        `json:"tenders" validate:"required,min=1,dive"`
	// RequestKey deduplicates retried submissions of the same checkout
	RequestKey string `json:"request_key,omitempty"`
	Reference  string `json:"reference,omitempty"`
}

// CancelRequest voids a completed transaction
type CancelRequest struct {
	TenantID      uuid.UUID `json:"tenant_id" validate:"required"`
	HeaderID      uuid.UUID `json:"header_id" validate:"required"`
	OperatorID    uuid.UUID `json:"operator_id" validate:"required"`
	Reason        string    `json:"reason" validate:"required"`
	ApprovalToken string    `json:"approval_token,omitempty"`
}

// RefundLine is one returned line of a refund request. BatchID narrows the
// refund to the original lines drawn from that batch; without it the
// quantity settles against the original lines in order.
type RefundLine struct {
	ProductID    uuid.UUID       `json:"product_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity" validate:"required"`
	BatchID      *uuid.UUID      `json:"batch_id,omitempty"`
	SerialUnitID *uuid.UUID      `json:"serial_unit_id,omitempty"`
	// Damaged units are destroyed instead of returning to sellable stock
	Damaged      bool   `json:"damaged"`
	DamageReason string `json:"damage_reason,omitempty"`
}

// RefundRequest returns part or all of a completed transaction
type RefundRequest struct {
	TenantID         uuid.UUID    `json:"tenant_id" validate:"required"`
	OriginalHeaderID uuid.UUID    `json:"original_header_id" validate:"required"`
	OperatorID       uuid.UUID    `json:"operator_id" validate:"required"`
	Lines            []RefundLine `json:"lines" validate:"required,min=1,dive"`
	Tenders          []Tender     `json:"tenders" validate:"required,min=1,dive"`
	Reason           string       `json:"reason" validate:"required"`
	ApprovalToken    string       `json:"approval_token,omitempty"`
	RequestKey       string       `json:"request_key,omitempty"`
}

// TransferLine is one product quantity to move between locations
type TransferLine struct {
	ProductID     uuid.UUID       `json:"product_id" validate:"required"`
	Quantity      decimal.Decimal `json:"quantity" validate:"required"`
	SourceBatchID *uuid.UUID      `json:"source_batch_id,omitempty"`
}

// TransferShipRequest posts the outbound leg of a stock transfer
type TransferShipRequest struct {
	TenantID   uuid.UUID      `json:"tenant_id" validate:"required"`
	OperatorID uuid.UUID      `json:"operator_id" validate:"required"`
	Lines      []TransferLine `json:"lines" validate:"required,min=1,dive"`
	Reference  string         `json:"reference,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// TransferReceiveLine is the counted quantity for one product on receipt
type TransferReceiveLine struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
}

// TransferReceiveRequest posts the inbound leg of a shipped transfer
type TransferReceiveRequest struct {
	TenantID         uuid.UUID             `json:"tenant_id" validate:"required"`
	TransferHeaderID uuid.UUID             `json:"transfer_header_id" validate:"required"`
	OperatorID       uuid.UUID             `json:"operator_id" validate:"required"`
	Lines            []TransferReceiveLine `json:"lines" validate:"required,min=1,dive"`
	Reason           string                `json:"reason,omitempty"`
}

// Result is the structured outcome of an orchestrated operation. A failed
// business validation comes back with Success false and the reasons listed,
// while infrastructure failures surface as errors.
type Result struct {
	Success          bool            `json:"success"`
	Reasons          []string        `json:"reasons,omitempty"`
	HeaderID         uuid.UUID       `json:"header_id,omitempty"`
	Number           string          `json:"number,omitempty"`
	SubtotalAmount   decimal.Decimal `json:"subtotal_amount"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	MovementIDs      []uuid.UUID     `json:"movement_ids,omitempty"`
	AlreadyProcessed bool            `json:"already_processed,omitempty"`
}

func failure(reasons ...string) *Result {
	return &Result{Success: false, Reasons: reasons}
}

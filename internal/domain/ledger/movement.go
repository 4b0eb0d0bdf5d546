package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MovementKind represents the business reason for a stock movement
type MovementKind string

const (
	// MovementKindSale is stock leaving inventory through a sale
	MovementKindSale MovementKind = "SALE"
	// MovementKindRefund is stock returning to inventory through a refund
	MovementKindRefund MovementKind = "REFUND"
	// MovementKindGRV is a goods-received voucher (purchase receipt)
	MovementKindGRV MovementKind = "GRV"
	// MovementKindTransferOut is stock shipped to another location
	MovementKindTransferOut MovementKind = "TRANSFER_OUT"
	// MovementKindTransferIn is stock received from another location
	MovementKindTransferIn MovementKind = "TRANSFER_IN"
	// MovementKindAdjustment is a manual correction in either direction
	MovementKindAdjustment MovementKind = "ADJUSTMENT"
	// MovementKindProductionInput is stock consumed by a production run
	MovementKindProductionInput MovementKind = "PRODUCTION_INPUT"
	// MovementKindProductionOutput is stock produced by a production run
	MovementKindProductionOutput MovementKind = "PRODUCTION_OUTPUT"
	// MovementKindVariance records a shipped-vs-received discrepancy on transfer
	MovementKindVariance MovementKind = "VARIANCE"
)

// String returns the string representation of MovementKind
func (k MovementKind) String() string {
	return string(k)
}

// IsValid returns true if the movement kind is valid
func (k MovementKind) IsValid() bool {
	switch k {
	case MovementKindSale,
		MovementKindRefund,
		MovementKindGRV,
		MovementKindTransferOut,
		MovementKindTransferIn,
		MovementKindAdjustment,
		MovementKindProductionInput,
		MovementKindProductionOutput,
		MovementKindVariance:
		return true
	}
	return false
}

// Direction describes the sign a movement kind requires
type Direction int

const (
	// DirectionEither allows positive or negative quantities
	DirectionEither Direction = iota
	// DirectionIn requires a positive quantity
	DirectionIn
	// DirectionOut requires a negative quantity
	DirectionOut
)

// Direction returns the sign convention for the kind
func (k MovementKind) Direction() Direction {
	switch k {
	case MovementKindRefund, MovementKindGRV, MovementKindTransferIn, MovementKindProductionOutput:
		return DirectionIn
	case MovementKindSale, MovementKindTransferOut, MovementKindProductionInput:
		return DirectionOut
	}
	return DirectionEither
}

// Movement is an immutable, signed stock event. Positive quantity is stock in,
// negative is stock out. Once created, a movement never changes; a correction
// is a new movement with ReversalOf set and the quantity negated.
type Movement struct {
	shared.BaseEntity
	TenantID            uuid.UUID       `gorm:"type:uuid;not null;index:idx_movement_key,priority:1"`
	ProductID           uuid.UUID       `gorm:"type:uuid;not null;index:idx_movement_key,priority:2"`
	BatchID             *uuid.UUID      `gorm:"type:uuid;index:idx_movement_key,priority:3"`
	SerialUnitID        *uuid.UUID      `gorm:"type:uuid;index"`
	Kind                MovementKind    `gorm:"type:varchar(30);not null;index"`
	Quantity            decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Signed: positive IN, negative OUT
	UnitValue           decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Value per unit at movement time
	SourceTransactionID uuid.UUID       `gorm:"type:uuid;not null;index:idx_movement_source"`
	SourceLineID        uuid.UUID       `gorm:"type:uuid;not null"`
	ReversalOf          *uuid.UUID      `gorm:"type:uuid;index"` // Set on compensating entries
	OperatorID          *uuid.UUID      `gorm:"type:uuid"`
	Reference           string          `gorm:"type:varchar(100)"`
	Reason              string          `gorm:"type:varchar(255)"`
	MovementDate        time.Time       `gorm:"type:timestamptz;not null;index:idx_movement_key,priority:4"`
}

// TableName returns the table name for GORM
func (Movement) TableName() string {
	return "stock_movements"
}

// NewMovement creates a new stock movement. Quantity is signed; for kinds with
// a fixed direction the sign must match.
func NewMovement(
	tenantID uuid.UUID,
	productID uuid.UUID,
	kind MovementKind,
	quantity decimal.Decimal,
	unitValue decimal.Decimal,
	sourceTransactionID uuid.UUID,
	sourceLineID uuid.UUID,
) (*Movement, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MOVEMENT", "Tenant ID cannot be empty")
	}
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MOVEMENT", "Product ID cannot be empty")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_MOVEMENT", "Invalid movement kind")
	}
	if quantity.IsZero() {
		return nil, shared.NewDomainError("INVALID_MOVEMENT", "Quantity cannot be zero")
	}
	switch kind.Direction() {
	case DirectionIn:
		if quantity.IsNegative() {
			return nil, shared.NewDomainError("INVALID_MOVEMENT", "Inbound movement requires a positive quantity")
		}
	case DirectionOut:
		if quantity.IsPositive() {
			return nil, shared.NewDomainError("INVALID_MOVEMENT", "Outbound movement requires a negative quantity")
		}
	}
	if unitValue.IsNegative() {
		return nil, shared.NewDomainError("INVALID_MOVEMENT", "Unit value cannot be negative")
	}
	if sourceTransactionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MOVEMENT", "Source transaction ID cannot be empty")
	}
	if sourceLineID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MOVEMENT", "Source line ID cannot be empty")
	}

	return &Movement{
		BaseEntity:          shared.NewBaseEntity(),
		TenantID:            tenantID,
		ProductID:           productID,
		Kind:                kind,
		Quantity:            quantity,
		UnitValue:           unitValue,
		SourceTransactionID: sourceTransactionID,
		SourceLineID:        sourceLineID,
		MovementDate:        time.Now(),
	}, nil
}

// WithBatchID sets the batch reference
func (m *Movement) WithBatchID(batchID uuid.UUID) *Movement {
	m.BatchID = &batchID
	return m
}

// WithSerialUnitID sets the serial unit reference
func (m *Movement) WithSerialUnitID(serialUnitID uuid.UUID) *Movement {
	m.SerialUnitID = &serialUnitID
	return m
}

// WithOperatorID sets the operator who caused the movement
func (m *Movement) WithOperatorID(operatorID uuid.UUID) *Movement {
	m.OperatorID = &operatorID
	return m
}

// WithReference sets the reference number
func (m *Movement) WithReference(reference string) *Movement {
	m.Reference = reference
	return m
}

// WithReason sets the reason text
func (m *Movement) WithReason(reason string) *Movement {
	m.Reason = reason
	return m
}

// WithMovementDate overrides the movement timestamp
func (m *Movement) WithMovementDate(date time.Time) *Movement {
	m.MovementDate = date
	return m
}

// Reversed builds the compensating movement for this one: quantity negated,
// ReversalOf pointing back here, same kind and source so replay still nets
// to zero. The original is never touched.
func (m *Movement) Reversed(reason string, operatorID *uuid.UUID) *Movement {
	originalID := m.ID
	rev := &Movement{
		BaseEntity:          shared.NewBaseEntity(),
		TenantID:            m.TenantID,
		ProductID:           m.ProductID,
		BatchID:             m.BatchID,
		SerialUnitID:        m.SerialUnitID,
		Kind:                m.Kind,
		Quantity:            m.Quantity.Neg(),
		UnitValue:           m.UnitValue,
		SourceTransactionID: m.SourceTransactionID,
		SourceLineID:        m.SourceLineID,
		ReversalOf:          &originalID,
		OperatorID:          operatorID,
		Reference:           m.Reference,
		Reason:              reason,
		MovementDate:        time.Now(),
	}
	return rev
}

// IsReversal returns true if this movement compensates another
func (m *Movement) IsReversal() bool {
	return m.ReversalOf != nil
}

// IsInbound returns true if the movement adds stock
func (m *Movement) IsInbound() bool {
	return m.Quantity.IsPositive()
}

// IsOutbound returns true if the movement removes stock
func (m *Movement) IsOutbound() bool {
	return m.Quantity.IsNegative()
}

// SignedValue returns Quantity * UnitValue, carrying the quantity's sign
func (m *Movement) SignedValue() decimal.Decimal {
	return m.Quantity.Mul(m.UnitValue)
}

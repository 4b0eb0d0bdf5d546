package lifecycle

import (
	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
)

// Event types for the lifecycle
const (
	EventTypeSerialUnitSold      = "lifecycle.serial_unit.sold"
	EventTypeSerialUnitReturned  = "lifecycle.serial_unit.returned"
	EventTypeSerialUnitDestroyed = "lifecycle.serial_unit.destroyed"
)

// SerialUnitSoldEvent is raised when a unit transitions ASSIGNED to SOLD
type SerialUnitSoldEvent struct {
	shared.BaseDomainEvent
	ProductID     uuid.UUID `json:"product_id"`
	SerialNumber  string    `json:"serial_number"`
	TransactionID uuid.UUID `json:"transaction_id"`
}

// NewSerialUnitSoldEvent creates a SerialUnitSoldEvent
func NewSerialUnitSoldEvent(u *SerialUnit, transactionID uuid.UUID) *SerialUnitSoldEvent {
	return &SerialUnitSoldEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSerialUnitSold, u.ID, "SerialUnit", u.TenantID),
		ProductID:       u.ProductID,
		SerialNumber:    u.SerialNumber,
		TransactionID:   transactionID,
	}
}

// SerialUnitReturnedEvent is raised when a sold unit returns to ASSIGNED
type SerialUnitReturnedEvent struct {
	shared.BaseDomainEvent
	ProductID    uuid.UUID `json:"product_id"`
	SerialNumber string    `json:"serial_number"`
}

// NewSerialUnitReturnedEvent creates a SerialUnitReturnedEvent
func NewSerialUnitReturnedEvent(u *SerialUnit) *SerialUnitReturnedEvent {
	return &SerialUnitReturnedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSerialUnitReturned, u.ID, "SerialUnit", u.TenantID),
		ProductID:       u.ProductID,
		SerialNumber:    u.SerialNumber,
	}
}

// SerialUnitDestroyedEvent is raised when a unit reaches the terminal state
type SerialUnitDestroyedEvent struct {
	shared.BaseDomainEvent
	ProductID    uuid.UUID `json:"product_id"`
	SerialNumber string    `json:"serial_number"`
	Reason       string    `json:"reason"`
}

// NewSerialUnitDestroyedEvent creates a SerialUnitDestroyedEvent
func NewSerialUnitDestroyedEvent(u *SerialUnit) *SerialUnitDestroyedEvent {
	return &SerialUnitDestroyedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSerialUnitDestroyed, u.ID, "SerialUnit", u.TenantID),
		ProductID:       u.ProductID,
		SerialNumber:    u.SerialNumber,
		Reason:          u.DestroyedReason,
	}
}

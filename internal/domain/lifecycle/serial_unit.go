package lifecycle

import (
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/shared"
)

// SerialStatus represents the lifecycle state of an individually tracked unit
type SerialStatus string

const (
	// SerialStatusCreated is a unit that exists but is not yet sellable
	SerialStatusCreated SerialStatus = "CREATED"
	// SerialStatusAssigned is a unit available for sale
	SerialStatusAssigned SerialStatus = "ASSIGNED"
	// SerialStatusSold is a unit consumed by a completed sale
	SerialStatusSold SerialStatus = "SOLD"
	// SerialStatusDestroyed is terminal: the unit is permanently removed
	SerialStatusDestroyed SerialStatus = "DESTROYED"
)

// String returns the string representation of SerialStatus
func (s SerialStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a valid SerialStatus
func (s SerialStatus) IsValid() bool {
	switch s {
	case SerialStatusCreated, SerialStatusAssigned, SerialStatusSold, SerialStatusDestroyed:
		return true
	}
	return false
}

// IsTerminal returns true for states that permit no further transitions
func (s SerialStatus) IsTerminal() bool {
	return s == SerialStatusDestroyed
}

// CanTransitionTo checks if the status can transition to the target status
func (s SerialStatus) CanTransitionTo(target SerialStatus) bool {
	switch s {
	case SerialStatusCreated:
		return target == SerialStatusAssigned || target == SerialStatusDestroyed
	case SerialStatusAssigned:
		return target == SerialStatusSold || target == SerialStatusDestroyed
	case SerialStatusSold:
		// A refund returns the unit to stock; damage destroys it.
		return target == SerialStatusAssigned || target == SerialStatusDestroyed
	case SerialStatusDestroyed:
		return false
	}
	return false
}

// SerialUnit is one individually tracked item. Which units may ever appear in
// a sale movement is gated by this state machine: only an ASSIGNED unit can
// be sold, and the ASSIGNED to SOLD transition is persisted as a
// compare-and-swap so concurrent checkouts cannot both claim it.
type SerialUnit struct {
	shared.BaseEntity
	TenantID            uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_serial_tenant_number"`
	ProductID           uuid.UUID    `gorm:"type:uuid;not null;index"`
	BatchID             *uuid.UUID   `gorm:"type:uuid;index"`
	SerialNumber        string       `gorm:"type:varchar(100);not null;uniqueIndex:idx_serial_tenant_number"`
	Status              SerialStatus `gorm:"type:varchar(20);not null;index"`
	SoldInTransactionID *uuid.UUID   `gorm:"type:uuid;index"`
	SoldAt              *time.Time   `gorm:"type:timestamptz"`
	DestroyedReason     string       `gorm:"type:varchar(255)"`
	DestroyedAt         *time.Time   `gorm:"type:timestamptz"`
}

// TableName returns the table name for GORM
func (SerialUnit) TableName() string {
	return "serial_units"
}

// NewSerialUnit creates a serial unit in CREATED state
func NewSerialUnit(tenantID, productID uuid.UUID, serialNumber string) (*SerialUnit, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product ID cannot be empty")
	}
	if serialNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Serial number cannot be empty")
	}
	return &SerialUnit{
		BaseEntity:   shared.NewBaseEntity(),
		TenantID:     tenantID,
		ProductID:    productID,
		SerialNumber: serialNumber,
		Status:       SerialStatusCreated,
	}, nil
}

// WithBatchID links the unit to its batch
func (u *SerialUnit) WithBatchID(batchID uuid.UUID) *SerialUnit {
	u.BatchID = &batchID
	return u
}

// transition applies the state machine, surfacing TERMINAL_STATE for any
// attempt out of DESTROYED and INVALID_STATE for other illegal moves
func (u *SerialUnit) transition(target SerialStatus) error {
	if u.Status.IsTerminal() {
		return shared.ErrTerminalState
	}
	if !u.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE",
			"Serial unit cannot transition from "+u.Status.String()+" to "+target.String())
	}
	u.Status = target
	u.UpdatedAt = time.Now()
	return nil
}

// Assign makes the unit available for sale (stock received or produced)
func (u *SerialUnit) Assign() error {
	return u.transition(SerialStatusAssigned)
}

// MarkSold records the sale. Callers must persist this with a
// compare-and-swap on the previous status (see SerialUnitRepository).
func (u *SerialUnit) MarkSold(transactionID uuid.UUID) error {
	if transactionID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Transaction ID cannot be empty")
	}
	if u.Status != SerialStatusAssigned {
		if u.Status.IsTerminal() {
			return shared.ErrTerminalState
		}
		return shared.ErrConcurrencyConflict
	}
	if err := u.transition(SerialStatusSold); err != nil {
		return err
	}
	now := time.Now()
	u.SoldInTransactionID = &transactionID
	u.SoldAt = &now
	return nil
}

// ReturnToStock returns a sold unit to ASSIGNED (refund or cancellation)
func (u *SerialUnit) ReturnToStock() error {
	if u.Status != SerialStatusSold {
		if u.Status.IsTerminal() {
			return shared.ErrTerminalState
		}
		return shared.NewDomainError("INVALID_STATE", "Only a sold unit can be returned to stock")
	}
	if err := u.transition(SerialStatusAssigned); err != nil {
		return err
	}
	u.SoldInTransactionID = nil
	u.SoldAt = nil
	return nil
}

// Destroy permanently removes the unit. Terminal and irreversible; a reason
// is required.
func (u *SerialUnit) Destroy(reason string) error {
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Destroy reason is required")
	}
	if err := u.transition(SerialStatusDestroyed); err != nil {
		return err
	}
	now := time.Now()
	u.DestroyedReason = reason
	u.DestroyedAt = &now
	return nil
}

// IsSellable returns true if the unit may be consumed by a checkout
func (u *SerialUnit) IsSellable() bool {
	return u.Status == SerialStatusAssigned
}

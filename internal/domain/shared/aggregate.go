package shared

import (
	"github.com/google/uuid"
)

// AggregateRoot is the consistency boundary for writes. Transaction headers
// are the only mutable aggregate in the system; movements stay append-only
// and never implement this.
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot adds the optimistic-lock version and the pending event
// buffer. Version is compared-and-swapped on every status transition, so two
// operators cancelling the same transaction cannot both win.
type BaseAggregateRoot struct {
	BaseEntity
	Version      int           `gorm:"not null;default:1"`
	domainEvents []DomainEvent `gorm:"-"`
}

// NewBaseAggregateRoot starts an aggregate at version 1 with no pending
// events.
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// GetVersion returns the current optimistic-lock version.
func (a *BaseAggregateRoot) GetVersion() int { return a.Version }

// IncrementVersion bumps the version after a successful CAS write.
func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }

// AddDomainEvent queues an event for publication after the aggregate is
// persisted. Events are never published mid-transaction.
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns the pending events in the order they were raised.
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent { return a.domainEvents }

// ClearDomainEvents drops the pending events once published.
func (a *BaseAggregateRoot) ClearDomainEvents() { a.domainEvents = nil }

// TenantAggregateRoot scopes an aggregate to one tenant. The tenant ID is
// set at construction and never changes.
type TenantAggregateRoot struct {
	BaseAggregateRoot
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// NewTenantAggregateRoot creates an aggregate owned by tenantID.
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	return TenantAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		TenantID:          tenantID,
	}
}

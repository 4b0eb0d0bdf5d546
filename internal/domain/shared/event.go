package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is something that already happened: a movement appended, a
// transaction refunded, a serial unit destroyed. Events are raised by
// aggregates and published only after the owning write commits.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	TenantID() uuid.UUID
}

// BaseDomainEvent is the envelope concrete events embed. Event types are
// dotted strings ("ledger.movement.appended") so handlers can subscribe by
// exact type.
type BaseDomainEvent struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggID         uuid.UUID `json:"aggregate_id"`
	AggType       string    `json:"aggregate_type"`
	TenantIDValue uuid.UUID `json:"tenant_id"`
}

// NewBaseDomainEvent stamps a new envelope with a fresh ID and the current
// time.
func NewBaseDomainEvent(eventType string, aggregateID uuid.UUID, aggregateType string, tenantID uuid.UUID) BaseDomainEvent {
	return BaseDomainEvent{
		ID:            uuid.New(),
		Type:          eventType,
		Timestamp:     time.Now(),
		AggID:         aggregateID,
		AggType:       aggregateType,
		TenantIDValue: tenantID,
	}
}

func (e *BaseDomainEvent) EventID() uuid.UUID { return e.ID }

func (e *BaseDomainEvent) EventType() string { return e.Type }

func (e *BaseDomainEvent) OccurredAt() time.Time { return e.Timestamp }

func (e *BaseDomainEvent) AggregateID() uuid.UUID { return e.AggID }

func (e *BaseDomainEvent) AggregateType() string { return e.AggType }

func (e *BaseDomainEvent) TenantID() uuid.UUID { return e.TenantIDValue }

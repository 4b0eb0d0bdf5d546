package shared

import "context"

// EventHandler reacts to published domain events. EventTypes narrows the
// subscription; an empty slice subscribes to everything.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	EventTypes() []string
}

// EventPublisher is the write side. The orchestrator publishes through this
// after each committed operation; it never knows who listens.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber is the read side, used during process wiring.
type EventSubscriber interface {
	// Subscribe registers a handler for the given event types; with none
	// given, the handler's own EventTypes decide.
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}

// EventBus combines both sides with a start/stop lifecycle.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoOpEventPublisher discards all events. Used where event distribution is
// not wired, e.g. unit tests.
type NoOpEventPublisher struct{}

// Publish discards the events.
func (NoOpEventPublisher) Publish(_ context.Context, _ ...DomainEvent) error {
	return nil
}

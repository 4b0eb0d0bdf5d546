package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/retailcore/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// InMemoryEventBus dispatches domain events synchronously to registered
// handlers within the process. Handler failures are logged and never
// propagate: a broken cache invalidation must not fail the checkout that
// produced the event.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	stopped  atomic.Bool
}

// NewInMemoryEventBus creates a bus with no subscriptions.
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
}

// Publish delivers each event to all matching handlers in subscription
// order. Always returns nil; failures are per-handler and logged.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if b.stopped.Load() {
		b.logger.Warn("event bus stopped, dropping events", zap.Int("count", len(events)))
		return nil
	}

	for _, evt := range events {
		for _, handler := range b.registry.HandlersFor(evt.EventType()) {
			if err := b.dispatch(ctx, handler, evt); err != nil {
				b.logger.Error("handler failed to process event",
					zap.String("event_type", evt.EventType()),
					zap.String("event_id", evt.EventID().String()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// Subscribe registers a handler. With no explicit types the handler's own
// EventTypes decide; a handler that declares none receives every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler from all subscriptions.
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// Start marks the bus as accepting events.
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.stopped.Store(false)
	b.logger.Info("event bus started")
	return nil
}

// Stop drains nothing (dispatch is synchronous) but flags the bus so late
// publishes during shutdown are dropped instead of hitting torn-down
// handlers.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.stopped.Store(true)
	b.logger.Info("event bus stopped")
	return nil
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, evt shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, evt)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

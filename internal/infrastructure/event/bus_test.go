package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingHandler collects the events it receives.
type recordingHandler struct {
	mu     sync.Mutex
	types  []string
	events []shared.DomainEvent
	err    error
	panics bool
}

func (h *recordingHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	if h.panics {
		panic("handler exploded")
	}
	h.mu.Lock()
	h.events = append(h.events, evt)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) received() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.events...)
}

func appendedEvent(t *testing.T) *ledger.MovementAppendedEvent {
	t.Helper()
	m, err := ledger.NewMovement(uuid.New(), uuid.New(), ledger.MovementKindGRV,
		decimal.NewFromInt(5), decimal.NewFromInt(10), uuid.New(), uuid.New())
	require.NoError(t, err)
	return ledger.NewMovementAppendedEvent(m)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	t.Run("delivers to subscribed handler", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		handler := &recordingHandler{types: []string{ledger.EventTypeMovementAppended}}
		bus.Subscribe(handler)

		evt := appendedEvent(t)
		require.NoError(t, bus.Publish(context.Background(), evt))

		received := handler.received()
		require.Len(t, received, 1)
		assert.Equal(t, evt.EventID(), received[0].EventID())
	})

	t.Run("skips handlers for other event types", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		handler := &recordingHandler{types: []string{"transaction.refunded"}}
		bus.Subscribe(handler)

		require.NoError(t, bus.Publish(context.Background(), appendedEvent(t)))
		assert.Empty(t, handler.received())
	})

	t.Run("wildcard handler receives everything", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		handler := &recordingHandler{}
		bus.Subscribe(handler)

		require.NoError(t, bus.Publish(context.Background(), appendedEvent(t), appendedEvent(t)))
		assert.Len(t, handler.received(), 2)
	})

	t.Run("handler error does not block other handlers", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		failing := &recordingHandler{types: []string{ledger.EventTypeMovementAppended}, err: errors.New("cache down")}
		healthy := &recordingHandler{types: []string{ledger.EventTypeMovementAppended}}
		bus.Subscribe(failing)
		bus.Subscribe(healthy)

		require.NoError(t, bus.Publish(context.Background(), appendedEvent(t)))
		assert.Len(t, healthy.received(), 1)
	})

	t.Run("handler panic is contained", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		panicking := &recordingHandler{types: []string{ledger.EventTypeMovementAppended}, panics: true}
		healthy := &recordingHandler{types: []string{ledger.EventTypeMovementAppended}}
		bus.Subscribe(panicking)
		bus.Subscribe(healthy)

		require.NotPanics(t, func() {
			require.NoError(t, bus.Publish(context.Background(), appendedEvent(t)))
		})
		assert.Len(t, healthy.received(), 1)
	})
}

func TestInMemoryEventBus_Lifecycle(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{ledger.EventTypeMovementAppended}}
	bus.Subscribe(handler)

	require.NoError(t, bus.Stop(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), appendedEvent(t)))
	assert.Empty(t, handler.received(), "stopped bus must drop events")

	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), appendedEvent(t)))
	assert.Len(t, handler.received(), 1)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{ledger.EventTypeMovementAppended}}
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), appendedEvent(t)))
	assert.Empty(t, handler.received())
}

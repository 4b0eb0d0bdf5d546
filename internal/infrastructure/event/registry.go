package event

import (
	"sync"

	"github.com/retailcore/backend/internal/domain/shared"
)

// wildcardType is the internal key for handlers subscribed to every event.
const wildcardType = "*"

// HandlerRegistry tracks which handlers receive which event types. Safe for
// concurrent use; Publish reads while HTTP setup code registers.
type HandlerRegistry struct {
	mu     sync.RWMutex
	byType map[string][]shared.EventHandler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{byType: make(map[string][]shared.EventHandler)}
}

// Register subscribes handler to the given event types. With no types the
// handler becomes a wildcard and receives everything.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(eventTypes) == 0 {
		eventTypes = []string{wildcardType}
	}
	for _, eventType := range eventTypes {
		r.byType[eventType] = append(r.byType[eventType], handler)
	}
}

// Unregister removes handler from every subscription.
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for eventType, handlers := range r.byType {
		kept := handlers[:0:0]
		for _, h := range handlers {
			if h != handler {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(r.byType, eventType)
			continue
		}
		r.byType[eventType] = kept
	}
}

// HandlersFor returns the handlers subscribed to eventType, wildcard
// subscribers included. The slice is a copy; callers may not mutate shared
// state.
func (r *HandlerRegistry) HandlersFor(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.byType[eventType]
	wild := r.byType[wildcardType]
	result := make([]shared.EventHandler, 0, len(typed)+len(wild))
	result = append(result, typed...)
	result = append(result, wild...)
	return result
}

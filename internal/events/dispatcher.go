package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
	}
}

// Publish synchronously invokes every handler for the event and joins their errors.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// SLAEmitter publishes committed SLA notifications on a dispatcher.
type SLAEmitter struct {
	dispatcher Dispatcher
}

// NewSLAEmitter wraps a dispatcher.
func NewSLAEmitter(dispatcher Dispatcher) *SLAEmitter {
	return &SLAEmitter{dispatcher: dispatcher}
}

// Emit publishes the notification as an sla_* event.
func (e *SLAEmitter) Emit(ctx context.Context, n domain.NotificationEvent) error {
	event, ok := FromNotification(n)
	if !ok {
		return fmt.Errorf("unsupported sla event kind %q", n.Kind)
	}
	return e.dispatcher.Publish(ctx, event)
}

// Package events provides the typed publish/subscribe bus for
// registry change notifications. Consumers use it for cache
// invalidation and hot-reload propagation.
package events

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type identifies a registry lifecycle event.
type Type string

const (
	TypeRegistered      Type = "registered"
	TypeUnregistered    Type = "unregistered"
	TypeUpdated         Type = "updated"
	TypeBatchRegistered Type = "batch_registered"
	TypeCleared         Type = "cleared"
)

// Event is one registry change notification.
type Event struct {
	// ID uniquely identifies the event instance.
	ID string

	// Type is the lifecycle event kind.
	Type Type

	// EndpointID is set for single-endpoint events.
	EndpointID string

	// EndpointIDs is set for batch events.
	EndpointIDs []string

	// Timestamp records when the event was emitted.
	Timestamp time.Time

	// Payload carries event-specific data, typically the endpoint.
	Payload any
}

// Listener receives published events.
type Listener func(Event)

// Bus is a publish/subscribe bus for registry events. Delivery is
// synchronous in subscription order; a panicking listener is caught
// and logged, never propagated to the publisher or other listeners.
type Bus struct {
	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
	logger    zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// Subscribe registers a listener and returns an unsubscribe function.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Publish emits an event to all listeners. A zero event ID or
// timestamp is filled in.
func (b *Bus) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, len(ids))
	for i, id := range ids {
		listeners[i] = b.listeners[id]
	}
	b.mu.RUnlock()

	b.logger.Debug().
		Str("event", string(event.Type)).
		Str("endpoint", event.EndpointID).
		Int("listeners", len(listeners)).
		Msg("registry event")

	for i, fn := range listeners {
		b.deliver(ids[i], fn, event)
	}
}

// deliver invokes one listener, isolating panics.
func (b *Bus) deliver(id int, fn Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Int("listener", id).
				Str("event", string(event.Type)).
				Any("panic", r).
				Msg("event listener panicked")
		}
	}()
	fn(event)
}

// ListenerCount returns the number of active subscriptions.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

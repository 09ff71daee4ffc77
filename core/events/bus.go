// Package events provides the publish/subscribe bus that carries change
// notices from the dispatcher to transports.
//
// The runtime publishes one event per successful mutating operation, named
// after the operation ("variable.set", "variable.patch", ...). Subscriptions
// match exactly, by first segment ("variable.*") or globally ("*").
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Event is a change notice.
type Event struct {
	// Name is the operation that produced the event (e.g., "variable.set").
	Name string `json:"event"`

	// Path is the dotted path of the affected entity.
	Path string `json:"path"`

	// ID is the affected entity's id.
	ID string `json:"id,omitempty"`

	// Member names the nested action or method, if any.
	Member string `json:"member,omitempty"`
}

// Handler processes an event.
type Handler func(ctx context.Context, event Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]subscription
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler for pattern and returns a function that
// removes it. Patterns:
//   - "variable.set" - exact match
//   - "variable.*" - every event whose first segment is "variable"
//   - "*" - all events
func (b *Bus) Subscribe(pattern string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[pattern] = append(b.handlers[pattern], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(pattern, id) })
	}
}

func (b *Bus) remove(pattern string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[pattern]
	for i, s := range subs {
		if s.id == id {
			b.handlers[pattern] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[pattern]) == 0 {
		delete(b.handlers, pattern)
	}
}

// Publish delivers an event to all matching handlers synchronously, exact
// subscriptions first, then segment wildcards, then global ones. Handler
// errors are logged and do not stop delivery.
func (b *Bus) Publish(ctx context.Context, event Event) {
	matched := b.match(event.Name)

	b.logger.Debug().
		Str("event", event.Name).
		Str("path", event.Path).
		Int("handlers", len(matched)).
		Msg("event emitted")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Str("path", event.Path).
				Msg("event handler error")
		}
	}
}

// PublishAsync emits an event asynchronously.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	go b.Publish(context.WithoutCancel(ctx), event)
}

// HasSubscribers reports whether any handler would receive an event named name.
func (b *Bus) HasSubscribers(name string) bool {
	return len(b.match(name)) > 0
}

// match snapshots the handlers for name so delivery runs without the lock
// and handlers may unsubscribe themselves.
func (b *Bus) match(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Handler
	add := func(pattern string) {
		for _, s := range b.handlers[pattern] {
			out = append(out, s.handler)
		}
	}

	add(name)
	if segment, _, ok := strings.Cut(name, "."); ok && segment != "" {
		add(segment + ".*")
	}
	add("*")
	return out
}

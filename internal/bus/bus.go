// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

// Package bus provides the synchronous in-process event bus that the plugin
// host and its plugins use to coordinate.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mosaicview/mosaic/internal/observability"
)

// Envelope is one published event's full addressed payload. A fresh envelope
// is produced on every publish call; envelopes are never persisted.
type Envelope struct {
	ID        ulid.ULID
	Type      string
	Data      any
	Source    string // set by PublishFrom/PublishBetween
	Target    string // set by PublishTo/PublishBetween
	Timestamp time.Time
}

// Handler receives published envelopes. Handlers run synchronously on the
// publisher's goroutine, in registration order. A panicking handler is
// recovered and logged; delivery continues with the remaining handlers.
type Handler func(Envelope)

// subscription pairs a handler with the token its unsubscribe closure removes.
type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches envelopes to subscribers. All methods are safe for
// concurrent use. Dispatch itself is synchronous: Publish returns only after
// every matching handler has run.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	global map[string][]subscription            // event type -> handlers
	scoped map[string]map[string][]subscription // component id -> event type -> handlers
	logger *slog.Logger
}

// Option configures the Bus.
type Option func(*Bus)

// WithLogger sets the logger used for handler panic reports.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// New creates an event bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		global: make(map[string][]subscription),
		scoped: make(map[string]map[string][]subscription),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a global handler for an event type. The returned
// closure removes exactly that handler; calling it more than once is a no-op
// after the first call.
func (b *Bus) Subscribe(eventType string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.global[eventType] = append(b.global[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.global[eventType] = removeSubscription(b.global[eventType], id)
	}
}

// SubscribeComponent registers a handler that is only reachable when an
// event is published with the given component as its target.
func (b *Bus) SubscribeComponent(componentID, eventType string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	byType, ok := b.scoped[componentID]
	if !ok {
		byType = make(map[string][]subscription)
		b.scoped[componentID] = byType
	}
	byType[eventType] = append(byType[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if byType, ok := b.scoped[componentID]; ok {
			byType[eventType] = removeSubscription(byType[eventType], id)
		}
	}
}

// UnsubscribeComponent drops every subscription registered for a component.
func (b *Bus) UnsubscribeComponent(componentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.scoped, componentID)
}

// Publish delivers an untargeted event to every global handler registered
// for the type. It returns true if at least one handler was attempted;
// a handler panic does not make delivery count as failed.
func (b *Bus) Publish(eventType string, data any) bool {
	return b.dispatch(Envelope{Type: eventType, Data: data})
}

// PublishFrom publishes an event tagged with its source component.
func (b *Bus) PublishFrom(sourceID, eventType string, data any) bool {
	return b.dispatch(Envelope{Type: eventType, Data: data, Source: sourceID})
}

// PublishTo publishes an event addressed to a target component. Delivery
// includes the target's component-scoped handlers in addition to the global
// ones.
func (b *Bus) PublishTo(targetID, eventType string, data any) bool {
	return b.dispatch(Envelope{Type: eventType, Data: data, Target: targetID})
}

// PublishBetween publishes an event tagged with both source and target.
func (b *Bus) PublishBetween(sourceID, targetID, eventType string, data any) bool {
	return b.dispatch(Envelope{Type: eventType, Data: data, Source: sourceID, Target: targetID})
}

// Clear drops every subscription, global and component-scoped. Intended for
// process teardown and tests only.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = make(map[string][]subscription)
	b.scoped = make(map[string]map[string][]subscription)
}

// dispatch stamps the envelope and runs matching handlers. The handler lists
// are snapshotted under the lock so handlers may subscribe or publish
// reentrantly; global handlers run in registration order before any
// component-scoped handlers for the target.
func (b *Bus) dispatch(env Envelope) bool {
	env.ID = ulid.Make()
	env.Timestamp = time.Now().UTC()

	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.global[env.Type]))
	for _, sub := range b.global[env.Type] {
		handlers = append(handlers, sub.handler)
	}
	if env.Target != "" {
		if byType, ok := b.scoped[env.Target]; ok {
			for _, sub := range byType[env.Type] {
				handlers = append(handlers, sub.handler)
			}
		}
	}
	b.mu.Unlock()

	observability.RecordEventPublished(env.Type)

	for _, h := range handlers {
		b.run(h, env)
	}
	return len(handlers) > 0
}

// run invokes one handler, converting a panic into a log entry.
func (b *Bus) run(h Handler, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", env.Type,
				"event_id", env.ID.String(),
				"panic", r)
		}
	}()
	h(env)
}

func removeSubscription(subs []subscription, id uint64) []subscription {
	for i, sub := range subs {
		if sub.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

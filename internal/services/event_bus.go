package services

import (
	"log/slog"
	"sync"

	"github.com/BradenHooton/pinguard/internal/models"
)

// EventHandler receives a published event. Handlers run on the publishing
// goroutine after the publisher has released its own locks, so they may call
// back into the engine or tracker.
type EventHandler func(models.Event)

type subscriber struct {
	id      uint64
	all     bool
	typ     models.EventType
	handler EventHandler
}

// EventBus fans lock and session events out to UI and navigation listeners.
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
	logger *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// Subscription is returned by On and OnAll. Close unregisters the handler.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Close stops delivery to the handler. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// On registers h for events of type t.
func (b *EventBus) On(t models.EventType, h EventHandler) *Subscription {
	return b.add(subscriber{typ: t, handler: h})
}

// OnAll registers h for every event.
func (b *EventBus) OnAll(h EventHandler) *Subscription {
	return b.add(subscriber{all: true, handler: h})
}

func (b *EventBus) add(s subscriber) *Subscription {
	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return &Subscription{cancel: func() { b.remove(s.id) }}
}

func (b *EventBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers events in order, each to its handlers in registration order.
// A panicking handler is logged and does not stop delivery to the others.
func (b *EventBus) Publish(events ...models.Event) {
	if b == nil || len(events) == 0 {
		return
	}

	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, ev := range events {
		for _, s := range subs {
			if s.all || s.typ == ev.Type {
				b.deliver(s, ev)
			}
		}
	}
}

// Len returns the number of registered handlers.
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every registration.
func (b *EventBus) Close() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}

func (b *EventBus) deliver(s subscriber, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				slog.String("event_type", string(ev.Type)),
				slog.Any("panic", r),
			)
		}
	}()
	s.handler(ev)
}

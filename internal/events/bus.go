package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for in-process event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers of its concrete type.
// Usage: bus.Publish(AlertEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case SessionStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case SessionMetricsEvent:
		event.Publish(b.dispatcher, e)
	case HealthSnapshotEvent:
		event.Publish(b.dispatcher, e)
	case HealthSummaryEvent:
		event.Publish(b.dispatcher, e)
	case AlertEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects which events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e AlertEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SessionStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(HealthSnapshotEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(HealthSummaryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AlertEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// Publisher is the publishing half of Bus, accepted by producers.
type Publisher interface {
	Publish(ev Event)
}

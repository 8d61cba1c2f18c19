package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch for consumers that
// select over channels, such as streaming HTTP handlers. Events are dropped
// when ch is full so a slow reader never stalls the bus.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards every T published on bus into ch until the
// returned function is called. An event is dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) (unsubscribe func()) {
	forward := func(ev T) {
		select {
		case ch <- ev:
		default:
		}
	}
	return event.Subscribe(bus.dispatcher, forward)
}

// Package events is the in-process event bus connecting the capture session
// to its observers (HTTP event stream, metrics, CLI).
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// A nil bus drops the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	// kelindar/event dispatches on the static type, so unwrap the interface
	switch e := ev.(type) {
	case RecordingPhaseChangedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingSavedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingFailedEvent:
		event.Publish(b.dispatcher, e)
	case CalibrationChangedEvent:
		event.Publish(b.dispatcher, e)
	case PhotoSavedEvent:
		event.Publish(b.dispatcher, e)
	case CaptureStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case CaptureErrorEvent:
		event.Publish(b.dispatcher, e)
	case FrameStatsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e RecordingSavedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(RecordingPhaseChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingSavedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CalibrationChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PhotoSavedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameStatsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/panocam/internal/events"
)

// sseEventTypes maps SSE event names to payload types.
var sseEventTypes = map[string]any{
	"capture-state-changed":   events.CaptureStateChangedEvent{},
	"capture-error":           events.CaptureErrorEvent{},
	"calibration-changed":     events.CalibrationChangedEvent{},
	"recording-phase-changed": events.RecordingPhaseChangedEvent{},
	"recording-saved":         events.RecordingSavedEvent{},
	"recording-failed":        events.RecordingFailedEvent{},
	"photo-saved":             events.PhotoSavedEvent{},
	"frame-stats":             events.FrameStatsEvent{},
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time capture, calibration, recording and frame statistics events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, sseEventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.CaptureStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CaptureErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CalibrationChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingPhaseChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingSavedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PhotoSavedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameStatsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// The current capture state doubles as connection confirmation
		st := s.session.Status()
		if err := send.Data(events.CaptureStateChangedEvent{
			Running:   st.Running,
			Device:    st.Device,
			Timestamp: timestamp(),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

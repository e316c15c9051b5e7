package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/panocam/internal/api/models"
)

func (s *Server) registerRecordingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "start-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/start",
		Summary:     "Start Recording",
		Description: "Begin recording the unwrapped stream. Requires a running, calibrated capture.",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 503, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.RecordingStartResponse, error) {
		id, err := s.session.StartRecording(ctx)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return &models.RecordingStartResponse{
			Body: models.RecordingStartData{RecordingID: id, Message: "Recording started"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/stop",
		Summary:     "Stop Recording",
		Description: "Finalize the current recording and move it to the album. Completion is reported on the event stream.",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 503, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := s.session.StopRecording(ctx); err != nil {
			return nil, toHTTPError(err)
		}
		return message("Recording stopping"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "abort-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/abort",
		Summary:     "Abort Recording",
		Description: "Discard the current recording",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 503, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := s.session.AbortRecording(ctx); err != nil {
			return nil, toHTTPError(err)
		}
		return message("Recording aborted"), nil
	})
}

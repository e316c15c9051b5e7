package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/panocam/internal/api/models"
	"github.com/smazurov/panocam/internal/capture"
	"github.com/smazurov/panocam/internal/unwrap"
)

func (s *Server) registerCaptureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Capture, calibration and recording state with pipeline counters",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: statusToAPI(s.session.Status())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-capture",
		Method:      http.MethodPost,
		Path:        "/api/capture/start",
		Summary:     "Start Capture",
		Description: "Start the capture source and render pipeline",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := s.session.Start(ctx); err != nil {
			return nil, toHTTPError(err)
		}
		return message("Capture started"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-capture",
		Method:      http.MethodPost,
		Path:        "/api/capture/stop",
		Summary:     "Stop Capture",
		Description: "Stop the capture source, aborting any recording",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 503, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := s.session.Stop(ctx); err != nil {
			return nil, toHTTPError(err)
		}
		return message("Capture stopped"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "calibrate",
		Method:        http.MethodPost,
		Path:          "/api/calibrate",
		Summary:       "Calibrate",
		Description:   "Switch from the calibration overlay to the unwrapped view. Without a body the configured parameters are used, with unset fields derived from the frame size. Calibration cannot be undone while capture runs.",
		Tags:          []string{"capture"},
		Security:      withAuth(),
		Errors:        []int{400, 401, 409, 503},
		DefaultStatus: http.StatusOK,
	}, func(_ context.Context, input *models.CalibrateRequest) (*models.CalibrateResponse, error) {
		var params *unwrap.Params
		if input.Body != nil {
			params = &unwrap.Params{
				Center:     unwrap.Point{X: input.Body.CenterX, Y: input.Body.CenterY},
				Radius:     input.Body.Radius,
				OutputSize: input.Body.OutputSize,
			}
		}
		p, err := s.session.Calibrate(params)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return &models.CalibrateResponse{Body: paramsToAPI(p)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "take-photo",
		Method:      http.MethodPost,
		Path:        "/api/photo",
		Summary:     "Take Photo",
		Description: "Unwrap the next video frame and save it to the album as JPEG",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 503, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.PhotoResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rect, err := s.session.TakePhoto(ctx)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return &models.PhotoResponse{Body: models.PhotoData{Width: rect.Dx(), Height: rect.Dy()}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-preview",
		Method:      http.MethodGet,
		Path:        "/api/preview.jpg",
		Summary:     "Preview",
		Description: "Latest rendered display surface as JPEG",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 503, 500},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "JPEG image",
				Content:     map[string]*huma.MediaType{"image/jpeg": {}},
			},
		},
	}, func(_ context.Context, _ *struct{}) (*models.PreviewResponse, error) {
		if s.preview == nil {
			return nil, huma.Error503ServiceUnavailable("preview not available")
		}
		data, updated, err := s.preview.JPEG()
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to encode preview", err)
		}
		resp := &models.PreviewResponse{
			ContentType:  "image/jpeg",
			CacheControl: "no-store",
			Body:         data,
		}
		if !updated.IsZero() {
			resp.LastModified = updated.UTC().Format(http.TimeFormat)
		}
		return resp, nil
	})
}

func message(msg string) *models.MessageResponse {
	return &models.MessageResponse{Body: models.MessageData{Message: msg}}
}

func paramsToAPI(p unwrap.Params) models.UnwrapParams {
	return models.UnwrapParams{
		CenterX:    p.Center.X,
		CenterY:    p.Center.Y,
		Radius:     p.Radius,
		OutputSize: p.OutputSize,
	}
}

func statusToAPI(st capture.Status) models.StatusData {
	rec := st.Recording
	data := models.StatusData{
		Running:     st.Running,
		Device:      st.Device,
		Mode:        st.Mode.String(),
		Calibrated:  st.Calibrated,
		FrameWidth:  st.FrameSize.X,
		FrameHeight: st.FrameSize.Y,
		Recording: models.RecordingStatus{
			Phase:       string(rec.Phase),
			RecordingID: rec.RecordingID,
			Duration:    rec.Duration.Seconds(),
			VideoFrames: rec.VideoFrames,
			AudioFrames: rec.AudioFrames,
			Dropped:     rec.Dropped,
			Restarts:    rec.Restarts,
		},
		Stats: models.FrameStats{
			VideoFrames:    st.Stats.VideoFrames,
			AudioFrames:    st.Stats.AudioFrames,
			DroppedFrames:  st.Stats.DroppedFrames,
			RecordedFrames: st.Stats.RecordedFrames,
		},
	}
	if rec.LastError != nil {
		data.Recording.LastError = rec.LastError.Error()
	}
	if st.Params != nil {
		p := paramsToAPI(*st.Params)
		data.Params = &p
	}
	return data
}

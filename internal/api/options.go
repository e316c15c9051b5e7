package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/panocam/internal/api/models"
	"github.com/smazurov/panocam/internal/ffmpeg"
)

// registerOptionsRoutes registers the FFmpeg capture option listing.
func (s *Server) registerOptionsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-ffmpeg-options",
		Method:      http.MethodGet,
		Path:        "/api/options",
		Summary:     "Get FFmpeg Options",
		Description: "Capture input options accepted in capture.options, with exclusive groups and conflicts",
		Tags:        []string{"configuration"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.OptionsResponse, error) {
		return &models.OptionsResponse{Body: models.OptionsData{Options: ffmpeg.AllOptions}}, nil
	})
}

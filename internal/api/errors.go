package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/panocam/internal/capture"
	"github.com/smazurov/panocam/internal/recorder"
	"github.com/smazurov/panocam/internal/unwrap"
)

// toHTTPError maps session and recorder errors to HTTP status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, recorder.ErrAlreadyRecording),
		errors.Is(err, recorder.ErrNotRecording),
		errors.Is(err, capture.ErrNotCalibrated),
		errors.Is(err, capture.ErrAlreadyCalibrated),
		errors.Is(err, capture.ErrRunning):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, capture.ErrNotRunning),
		errors.Is(err, recorder.ErrClosed):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, unwrap.ErrInvalidParams),
		errors.Is(err, capture.ErrNoFrame):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}

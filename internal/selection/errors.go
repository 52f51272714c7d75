package selection

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/labelhub/internal/taxonomy"
)

// ErrTaskNotFound is wrapped by an EngineSource that has no task for the id.
var ErrTaskNotFound = errors.New("task not found")

// MapHTTPStatus maps selection errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownOperation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownDimension), errors.Is(err, ErrInvalidPath):
		return http.StatusUnprocessableEntity
	default:
		return taxonomy.MapHTTPStatus(err)
	}
}

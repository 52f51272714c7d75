package annotations

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/internal/subtasks"
)

// Domain errors for row annotation operations.
var (
	ErrNotFound      = errors.New("annotation not found")
	ErrDuplicate     = errors.New("annotation already exists")
	ErrRowOutOfRange = errors.New("row is outside the subtask range")
	ErrNotEditable   = errors.New("subtask status does not allow editing")
	ErrInvalidStatus = errors.New("invalid row status")
)

// MapHTTPStatus maps annotation domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRowOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrNotEditable):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, selection.ErrUnknownDimension), errors.Is(err, selection.ErrInvalidPath):
		return http.StatusUnprocessableEntity
	}
	return subtasks.MapHTTPStatus(err)
}

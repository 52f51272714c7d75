package distribution

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/labelhub/internal/abilities"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/internal/tasks"
)

// Domain errors for distribution operations.
var (
	ErrNotFound       = errors.New("result not found")
	ErrDuplicate      = errors.New("result already exists")
	ErrRowNotFound    = errors.New("task row not found")
	ErrNotAssignee    = errors.New("result is assigned to another worker")
	ErrRowFinished    = errors.New("row is already settled")
	ErrEmptyResult    = errors.New("result has no selections")
	ErrSentToReview   = errors.New("row has been sent to review")
	ErrNotReleasable  = errors.New("task is not in progress")
	ErrInvalidUndo    = errors.New("undo needs a worker and either a date or a row index")
	ErrDateUndoDenied = errors.New("only the task owner or an administrator may undo a day")
)

// MapHTTPStatus maps distribution domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRowNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrRowFinished),
		errors.Is(err, ErrSentToReview),
		errors.Is(err, ErrNotReleasable):
		return http.StatusConflict
	case errors.Is(err, ErrNotAssignee), errors.Is(err, ErrDateUndoDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidUndo):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmptyResult),
		errors.Is(err, selection.ErrUnknownDimension),
		errors.Is(err, selection.ErrInvalidPath):
		return http.StatusUnprocessableEntity
	}
	if status := abilities.MapHTTPStatus(err); status != http.StatusInternalServerError {
		return status
	}
	if status := tasks.MapHTTPStatus(err); status != http.StatusInternalServerError {
		return status
	}
	return identity.MapHTTPStatus(err)
}

package tasks

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/taxonomy"
)

// Domain errors for task operations.
var (
	ErrNotFound          = errors.New("task not found")
	ErrDuplicate         = errors.New("task already exists")
	ErrFileTooLarge      = errors.New("file exceeds maximum upload size")
	ErrInvalidFile       = errors.New("invalid file")
	ErrInvalidTask       = errors.New("invalid task settings")
	ErrNotApproved       = errors.New("task is not approved")
	ErrInvalidTransition = errors.New("task status does not allow this operation")
	ErrInvalidReviewer   = errors.New("reviewer needs a worker id")
	ErrReviewerExists    = errors.New("worker is already a reviewer of this task")
	ErrReviewerNotFound  = errors.New("worker is not a reviewer of this task")
)

// MapHTTPStatus maps task domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrReviewerNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotApproved) ||
		errors.Is(err, ErrReviewerExists) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrFileTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, ErrInvalidFile) || errors.Is(err, ErrInvalidTask) || errors.Is(err, ErrInvalidReviewer) {
		return http.StatusBadRequest
	}
	if status := taxonomy.MapHTTPStatus(err); status != http.StatusInternalServerError {
		return status
	}
	if status := datasets.MapHTTPStatus(err); status != http.StatusInternalServerError {
		return status
	}
	return identity.MapHTTPStatus(err)
}

package subtasks

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/labelhub/internal/abilities"
	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/taxonomy"
)

// Domain errors for subtask operations. The four claim conflicts stay distinct.
var (
	ErrNotFound          = errors.New("subtask not found")
	ErrDuplicate         = errors.New("subtask already exists")
	ErrAlreadyClaimed    = errors.New("subtask already claimed")
	ErrNotApproved       = errors.New("task is not approved")
	ErrNotOpen           = errors.New("task is not open for claiming")
	ErrQuotaExceeded     = errors.New("task worker quota exceeded")
	ErrNotClaimant       = errors.New("subtask is claimed by another worker")
	ErrInvalidTransition = errors.New("subtask status does not allow this operation")
	ErrIncomplete        = errors.New("subtask has rows without annotations")
)

// MapHTTPStatus maps subtask domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrNotApproved),
		errors.Is(err, ErrNotOpen),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrNotClaimant):
		return http.StatusForbidden
	case errors.Is(err, ErrIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, abilities.ErrInvalidExpertise):
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

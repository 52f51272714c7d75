package abilities

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/labelhub/internal/identity"
)

// Domain errors for ability operations.
var (
	ErrNotFound         = errors.New("ability vector not found")
	ErrDuplicate        = errors.New("ability vector already exists")
	ErrTaskNotFound     = errors.New("task not found")
	ErrInvalidExpertise = errors.New("at most 3 expertise categories may be declared")
)

// MapHTTPStatus maps ability domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTaskNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidExpertise) {
		return http.StatusBadRequest
	}
	return identity.MapHTTPStatus(err)
}

package taxonomy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JaimeStill/labelhub/pkg/storage"
)

// Domain errors for taxonomy loading.
var (
	ErrEmpty             = errors.New("taxonomy has no dimensions")
	ErrStructure         = errors.New("invalid taxonomy structure")
	ErrUnsupportedFormat = errors.New("unsupported taxonomy format")
)

func structureError(dimension string, row int, reason string) error {
	if row > 0 {
		return fmt.Errorf("%w: dimension %q row %d: %s", ErrStructure, dimension, row, reason)
	}
	return fmt.Errorf("%w: dimension %q: %s", ErrStructure, dimension, reason)
}

// MapHTTPStatus maps taxonomy errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmpty),
		errors.Is(err, ErrStructure),
		errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

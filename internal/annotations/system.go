package annotations

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
)

// System defines the public contract for row annotation operations.
type System interface {
	Handler() *Handler

	// List returns every opened row of the subtask with its selections.
	List(ctx context.Context, actor identity.Actor, subtaskID uuid.UUID) ([]Annotation, error)

	// Open returns the row's annotation, creating it on first visit.
	Open(ctx context.Context, actor identity.Actor, subtaskID uuid.UUID, rowIndex int) (*Annotation, error)

	// Save finalizes the posted selections and replaces the row's stored set.
	Save(ctx context.Context, actor identity.Actor, subtaskID uuid.UUID, rowIndex int, cmd SaveCommand) (*Annotation, error)

	// SetStatus records the reviewer's verdict for one row.
	SetStatus(ctx context.Context, actor identity.Actor, subtaskID uuid.UUID, rowIndex int, cmd StatusCommand) (*Annotation, error)
}

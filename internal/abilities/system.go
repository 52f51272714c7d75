package abilities

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/pkg/pagination"
)

// System defines the public contract for ability queries.
type System interface {
	Handler() *Handler

	// Find returns one worker's vector. Workers may read their own; task
	// managers may read any.
	Find(ctx context.Context, actor identity.Actor, taskID uuid.UUID, workerID string) (*Vector, error)

	// ListByTask pages through every vector of a task for its managers.
	ListByTask(
		ctx context.Context,
		actor identity.Actor,
		taskID uuid.UUID,
		page pagination.PageRequest,
	) (*pagination.PageResult[Vector], error)
}

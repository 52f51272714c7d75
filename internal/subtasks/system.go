package subtasks

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/pkg/pagination"
)

// System defines the public contract for subtask lifecycle operations.
type System interface {
	Handler() *Handler

	Find(ctx context.Context, id uuid.UUID) (*Subtask, error)

	ListByTask(
		ctx context.Context,
		taskID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Subtask], error)

	// Rows returns the dataset rows of the subtask's range.
	Rows(ctx context.Context, id uuid.UUID) ([]Row, error)

	// Claim assigns an open subtask to the actor and initializes the actor's
	// ability vector for the task. Conflicts are reported as ErrAlreadyClaimed,
	// ErrNotApproved, ErrQuotaExceeded, or ErrNotOpen, checked in that order so
	// a task closed by its own quota reports the quota.
	Claim(ctx context.Context, actor identity.Actor, id uuid.UUID, cmd ClaimCommand) (*Subtask, error)

	// Submit hands a fully annotated subtask over for review.
	Submit(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Subtask, error)

	// CompleteReview approves the subtask and credits its points exactly once.
	CompleteReview(ctx context.Context, actor identity.Actor, id uuid.UUID, cmd ReviewCommand) (*Review, error)

	// RejectReview marks every annotated row of the subtask REJECTED.
	RejectReview(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Subtask, error)
}

package tasks

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/internal/taxonomy"
	"github.com/JaimeStill/labelhub/pkg/pagination"
)

// System defines the public contract for task domain operations.
type System interface {
	Handler(maxUploadSize int64) *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Task], error)

	Find(ctx context.Context, id uuid.UUID) (*Task, error)
	Create(ctx context.Context, actor identity.Actor, cmd CreateCommand) (*Task, error)
	Approve(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Task, error)
	Publish(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Task, error)
	Delete(ctx context.Context, actor identity.Actor, id uuid.UUID) error

	// Reviewers lists the workers designated to review disputed rows.
	Reviewers(ctx context.Context, actor identity.Actor, id uuid.UUID) ([]Reviewer, error)
	AddReviewer(ctx context.Context, actor identity.Actor, id uuid.UUID, workerID string) (*Reviewer, error)
	RemoveReviewer(ctx context.Context, actor identity.Actor, id uuid.UUID, workerID string) error

	// Taxonomy loads the normalized taxonomy registered with the task.
	Taxonomy(ctx context.Context, id uuid.UUID) (*taxonomy.Taxonomy, error)

	// Engine builds the selection engine for the task's taxonomy.
	Engine(ctx context.Context, id uuid.UUID) (*selection.Engine, error)
}

package distribution

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/pkg/pagination"
)

// System defines the distribution interface: batch release, result
// collection with consensus, and rollback.
type System interface {
	Handler() *Handler

	ListResults(ctx context.Context, actor identity.Actor, taskID uuid.UUID, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Result], error)
	SaveResult(ctx context.Context, actor identity.Actor, id uuid.UUID, cmd SaveCommand) (*Result, error)

	// Release hands out a batch for one task now, regardless of its cycle.
	Release(ctx context.Context, actor identity.Actor, taskID uuid.UUID) (*ReleaseReport, error)
	// ReleaseReview hands out only the reviews waiting on a designated
	// reviewer, without opening a new period.
	ReleaseReview(ctx context.Context, actor identity.Actor, taskID uuid.UUID) (*ReleaseReport, error)
	// ReleaseDue releases every task whose cycle has come round.
	ReleaseDue(ctx context.Context) (Summary, error)

	UndoByDay(ctx context.Context, actor identity.Actor, taskID uuid.UUID, workerID, date string) (UndoReport, error)
	UndoByRow(ctx context.Context, actor identity.Actor, taskID uuid.UUID, workerID string, rowIndex int, round Round) (UndoReport, error)

	// Recheck settles rows whose labeling results are all in but were never voted on.
	Recheck(ctx context.Context, actor identity.Actor, taskID uuid.UUID) (RecheckReport, error)
	Export(ctx context.Context, actor identity.Actor, taskID uuid.UUID) (*Export, error)
}

package abilities

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/pkg/pagination"
	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates an ability repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "abilities"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Find(ctx context.Context, actor identity.Actor, taskID uuid.UUID, workerID string) (*Vector, error) {
	if actor.ID != workerID {
		if err := r.authorize(ctx, actor, taskID); err != nil {
			return nil, err
		}
	}

	q, args := query.NewBuilder(projection).
		WhereEquals("TaskID", taskID).
		WhereEquals("WorkerID", workerID).
		BuildSingleOrNull()

	v, err := repository.QueryOne(ctx, r.db, q, args, scanVector)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &v, nil
}

func (r *repo) ListByTask(
	ctx context.Context,
	actor identity.Actor,
	taskID uuid.UUID,
	page pagination.PageRequest,
) (*pagination.PageResult[Vector], error) {
	if err := r.authorize(ctx, actor, taskID); err != nil {
		return nil, err
	}

	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("TaskID", taskID).
		WhereSearch(page.Search, "WorkerID")

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count ability vectors: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	vectors, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanVector)
	if err != nil {
		return nil, fmt.Errorf("query ability vectors: %w", err)
	}

	result := pagination.NewPageResult(vectors, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) authorize(ctx context.Context, actor identity.Actor, taskID uuid.UUID) error {
	var owner string
	err := r.db.QueryRowContext(ctx, "SELECT publisher_id FROM tasks WHERE id = $1", taskID).Scan(&owner)
	if err != nil {
		return repository.MapError(err, ErrTaskNotFound, ErrDuplicate)
	}
	if !actor.CanManage(owner) {
		return identity.ErrForbidden
	}
	return nil
}

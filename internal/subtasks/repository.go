package subtasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/abilities"
	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/tasks"
	"github.com/JaimeStill/labelhub/internal/taxonomy"
	"github.com/JaimeStill/labelhub/pkg/metrics"
	"github.com/JaimeStill/labelhub/pkg/pagination"
	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

type repo struct {
	db         *sql.DB
	taxa       taxonomy.Provider
	rows       datasets.Provider
	metrics    *metrics.Metrics
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a subtask repository implementing the System interface.
func New(
	db *sql.DB,
	taxa taxonomy.Provider,
	rows datasets.Provider,
	m *metrics.Metrics,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		taxa:       taxa,
		rows:       rows,
		metrics:    m,
		logger:     logger.With("system", "subtasks"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Subtask, error) {
	return Get(ctx, r.db, id)
}

func (r *repo) ListByTask(
	ctx context.Context,
	taskID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Subtask], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("TaskID", taskID)

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count subtasks: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanSubtask)
	if err != nil {
		return nil, fmt.Errorf("query subtasks: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Rows(ctx context.Context, id uuid.UUID) ([]Row, error) {
	s, err := Get(ctx, r.db, id)
	if err != nil {
		return nil, err
	}

	var key string
	if err := r.db.QueryRowContext(ctx, "SELECT dataset_key FROM tasks WHERE id = $1", s.TaskID).Scan(&key); err != nil {
		return nil, repository.MapError(err, tasks.ErrNotFound, tasks.ErrDuplicate)
	}

	data, err := r.rows.Rows(ctx, key, s.StartRow, s.EndRow)
	if err != nil {
		return nil, fmt.Errorf("load rows: %w", err)
	}

	out := make([]Row, len(data))
	for i, d := range data {
		out[i] = Row{Index: s.StartRow + i, Data: d}
	}
	return out, nil
}

const claimQuery = `
	UPDATE subtasks
	SET worker_id = $2, status = 'IN_PROGRESS', claimed_at = NOW(), updated_at = NOW()
	WHERE id = $1 AND status = 'OPEN' AND worker_id IS NULL
	RETURNING ` + returning

func (r *repo) Claim(ctx context.Context, actor identity.Actor, id uuid.UUID, cmd ClaimCommand) (*Subtask, error) {
	if actor.ID == "" {
		return nil, identity.ErrUnauthenticated
	}
	if len(cmd.Expertise) > abilities.MaxExpertise {
		return nil, abilities.ErrInvalidExpertise
	}

	key, tax := r.preloadTaxonomy(ctx, id)

	initialized := false
	s, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Subtask, error) {
		current, err := Lock(ctx, tx, id)
		if err != nil {
			return Subtask{}, err
		}
		if current.WorkerID != nil || current.Status != StatusOpen {
			return Subtask{}, ErrAlreadyClaimed
		}

		t, err := tasks.Lock(ctx, tx, current.TaskID)
		if err != nil {
			return Subtask{}, err
		}
		switch {
		case !t.Approved:
			return Subtask{}, ErrNotApproved
		case t.WorkerCount >= t.MaxWorkers:
			return Subtask{}, fmt.Errorf("%w: %d of %d workers", ErrQuotaExceeded, t.WorkerCount, t.MaxWorkers)
		case t.Status != tasks.StatusOpen:
			return Subtask{}, fmt.Errorf("%w: task is %s", ErrNotOpen, t.Status)
		}

		claimed, err := repository.QueryOne(ctx, tx, claimQuery, []any{id, actor.ID}, scanSubtask)
		if err != nil {
			return Subtask{}, fmt.Errorf("claim subtask: %w", err)
		}

		if err := tasks.AddWorker(ctx, tx, t.ID); err != nil {
			return Subtask{}, fmt.Errorf("count worker: %w", err)
		}

		if t.TaxonomyKey != key {
			tax = r.loadTaxonomy(ctx, t)
		}
		initialized, err = r.initAbilities(ctx, tx, actor.ID, t, tax, cmd.Expertise)
		if err != nil {
			return Subtask{}, err
		}

		return claimed, nil
	})

	r.metrics.RecordClaim(claimOutcome(err))
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	if initialized {
		r.metrics.RecordAbilityInit()
	}

	r.logger.Info("subtask claimed",
		"id", id,
		"task_id", s.TaskID,
		"worker_id", actor.ID,
		"abilities", initialized,
	)
	return &s, nil
}

const taxonomyKeyQuery = `
	SELECT t.taxonomy_key
	FROM subtasks s
	JOIN tasks t ON t.id = s.task_id
	WHERE s.id = $1`

// preloadTaxonomy resolves the subtask's taxonomy before the claim
// transaction takes the task row lock, so a blob download never runs under
// it. Failures return a nil taxonomy and leave error reporting to the claim.
func (r *repo) preloadTaxonomy(ctx context.Context, subtaskID uuid.UUID) (string, *taxonomy.Taxonomy) {
	var key string
	if err := r.db.QueryRowContext(ctx, taxonomyKeyQuery, subtaskID).Scan(&key); err != nil {
		return "", nil
	}
	tax, err := r.taxa.Load(ctx, key)
	if err != nil {
		r.logger.Warn("taxonomy preload failed", "subtask_id", subtaskID, "error", err)
		return key, nil
	}
	return key, tax
}

// loadTaxonomy covers a taxonomy replaced between preload and lock.
func (r *repo) loadTaxonomy(ctx context.Context, t *tasks.Task) *taxonomy.Taxonomy {
	tax, err := r.taxa.Load(ctx, t.TaxonomyKey)
	if err != nil {
		r.logger.Warn("taxonomy load failed", "task_id", t.ID, "error", err)
		return nil
	}
	return tax
}

// initAbilities seeds the worker's ability vector from the task's first-level
// categories. A taxonomy that could not be loaded or has no categories skips it.
func (r *repo) initAbilities(ctx context.Context, tx *sql.Tx, workerID string, t *tasks.Task, tax *taxonomy.Taxonomy, expertise []string) (bool, error) {
	if tax == nil {
		r.logger.Warn("ability initialization skipped", "task_id", t.ID)
		return false, nil
	}

	v, ok := abilities.Initialize(workerID, t.ID, tax.FirstLevelNames(), expertise)
	if !ok {
		return false, nil
	}

	if err := abilities.Upsert(ctx, tx, v); err != nil {
		return false, fmt.Errorf("initialize abilities: %w", err)
	}
	return true, nil
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return "claimed"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrNotApproved):
		return "not_approved"
	case errors.Is(err, ErrNotOpen):
		return "not_open"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (r *repo) Submit(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Subtask, error) {
	q := `
		UPDATE subtasks
		SET status = 'PENDING_REVIEW', submitted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'IN_PROGRESS'
		RETURNING ` + returning

	s, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Subtask, error) {
		current, err := Lock(ctx, tx, id)
		if err != nil {
			return Subtask{}, err
		}
		if !current.ClaimedBy(actor.ID) {
			return Subtask{}, ErrNotClaimant
		}
		if current.Status != StatusInProgress {
			return Subtask{}, fmt.Errorf("%w: subtask is %s", ErrInvalidTransition, current.Status)
		}

		var annotated int
		err = tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM row_annotations WHERE subtask_id = $1",
			id,
		).Scan(&annotated)
		if err != nil {
			return Subtask{}, fmt.Errorf("count annotations: %w", err)
		}
		if annotated < current.Rows() {
			return Subtask{}, fmt.Errorf("%w: %d of %d rows", ErrIncomplete, annotated, current.Rows())
		}

		return repository.QueryOne(ctx, tx, q, []any{id}, scanSubtask)
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("subtask submitted", "id", id, "worker_id", actor.ID)
	return &s, nil
}

const (
	completeQuery = `
		UPDATE subtasks
		SET status = 'COMPLETED', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING_REVIEW'
		RETURNING ` + returning

	creditQuery = `
		INSERT INTO point_credits(subtask_id, worker_id, points, credited_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subtask_id) DO NOTHING`
)

func (r *repo) CompleteReview(ctx context.Context, actor identity.Actor, id uuid.UUID, cmd ReviewCommand) (*Review, error) {
	if cmd.Points != nil && *cmd.Points < 0 {
		return nil, fmt.Errorf("%w: points cannot be negative", ErrInvalidTransition)
	}

	review, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Review, error) {
		current, err := Lock(ctx, tx, id)
		if err != nil {
			return Review{}, err
		}

		t, err := tasks.Lock(ctx, tx, current.TaskID)
		if err != nil {
			return Review{}, err
		}
		if !actor.CanManage(t.PublisherID) {
			return Review{}, identity.ErrForbidden
		}

		if current.Status == StatusCompleted {
			return Review{Subtask: *current, Points: current.Points}, nil
		}
		if current.Status != StatusPendingReview {
			return Review{}, fmt.Errorf("%w: subtask is %s", ErrInvalidTransition, current.Status)
		}

		promoted, err := repository.ExecCount(ctx, tx,
			"UPDATE row_annotations SET status = 'APPROVED', updated_at = NOW() WHERE subtask_id = $1 AND status = 'PENDING'",
			id,
		)
		if err != nil {
			return Review{}, fmt.Errorf("promote pending rows: %w", err)
		}

		completed, err := repository.QueryOne(ctx, tx, completeQuery, []any{id}, scanSubtask)
		if err != nil {
			return Review{}, fmt.Errorf("complete subtask: %w", err)
		}

		points := completed.Points
		if cmd.Points != nil {
			points = *cmd.Points
		}

		n, err := repository.ExecCount(ctx, tx, creditQuery, id, *completed.WorkerID, points, actor.ID)
		if err != nil {
			return Review{}, fmt.Errorf("credit points: %w", err)
		}

		if _, err := tasks.CompleteIfDone(ctx, tx, completed.TaskID); err != nil {
			return Review{}, fmt.Errorf("complete task: %w", err)
		}

		return Review{
			Subtask:  completed,
			Points:   points,
			Credited: n == 1,
			Promoted: promoted,
		}, nil
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if review.Credited {
		r.metrics.RecordReview("completed")
		r.logger.Info("review completed",
			"id", id,
			"reviewer", actor.ID,
			"points", review.Points,
			"promoted", review.Promoted,
		)
	}
	return &review, nil
}

func (r *repo) RejectReview(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Subtask, error) {
	s, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Subtask, error) {
		current, err := Lock(ctx, tx, id)
		if err != nil {
			return Subtask{}, err
		}

		t, err := tasks.Lock(ctx, tx, current.TaskID)
		if err != nil {
			return Subtask{}, err
		}
		if !actor.CanManage(t.PublisherID) {
			return Subtask{}, identity.ErrForbidden
		}
		if current.Status != StatusPendingReview {
			return Subtask{}, fmt.Errorf("%w: subtask is %s", ErrInvalidTransition, current.Status)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE row_annotations SET status = 'REJECTED', updated_at = NOW() WHERE subtask_id = $1",
			id,
		)
		if err != nil {
			return Subtask{}, fmt.Errorf("reject rows: %w", err)
		}
		return *current, nil
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.metrics.RecordReview("rejected")
	r.logger.Info("review rejected", "id", id, "reviewer", actor.ID)
	return &s, nil
}

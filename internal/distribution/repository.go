package distribution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/internal/tasks"
	"github.com/JaimeStill/labelhub/pkg/events"
	"github.com/JaimeStill/labelhub/pkg/metrics"
	"github.com/JaimeStill/labelhub/pkg/pagination"
	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

type repo struct {
	db         *sql.DB
	engines    selection.EngineSource
	rows       datasets.Provider
	bus        events.Bus
	cfg        Config
	metrics    *metrics.Metrics
	logger     *slog.Logger
	pagination pagination.Config
	now        func() time.Time
}

// New creates a distribution repository implementing the System interface.
// A nil bus disables event publication.
func New(
	db *sql.DB,
	engines selection.EngineSource,
	rows datasets.Provider,
	bus events.Bus,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		engines:    engines,
		rows:       rows,
		bus:        bus,
		cfg:        cfg.normalize(),
		metrics:    m,
		logger:     logger.With("system", "distribution"),
		pagination: pagination,
		now:        time.Now,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) owner(ctx context.Context, taskID uuid.UUID) (string, error) {
	var owner string
	err := r.db.QueryRowContext(ctx, "SELECT publisher_id FROM tasks WHERE id = $1", taskID).Scan(&owner)
	if err != nil {
		return "", repository.MapError(err, tasks.ErrNotFound, tasks.ErrDuplicate)
	}
	return owner, nil
}

func (r *repo) ListResults(
	ctx context.Context,
	actor identity.Actor,
	taskID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Result], error) {
	owner, err := r.owner(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(owner) {
		filters.WorkerID = &actor.ID
	}

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
		return nil, fmt.Errorf("count results: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanResult)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

const (
	saveResultQuery = `
		UPDATE annotation_results
		SET selections = $2, category = $3, updated_at = NOW()
		WHERE id = $1`

	finishResultQuery = `
		UPDATE annotation_results
		SET is_finished = TRUE, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND NOT is_finished`

	completeRowQuery = `
		UPDATE task_rows
		SET completed_count = completed_count + 1, updated_at = NOW()
		WHERE task_id = $1 AND row_index = $2
		RETURNING completed_count, required_count`
)

func (r *repo) SaveResult(ctx context.Context, actor identity.Actor, id uuid.UUID, cmd SaveCommand) (*Result, error) {
	current, err := Get(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if current.WorkerID != actor.ID {
		return nil, ErrNotAssignee
	}

	engine, err := r.engines.Engine(ctx, current.TaskID)
	if err != nil {
		return nil, err
	}
	sels := engine.Finalize(cmd.Selections)
	if len(sels) == 0 {
		return nil, ErrEmptyResult
	}
	if err := engine.Validate(sels); err != nil {
		return nil, err
	}
	category := engine.Category(sels)

	payload, err := json.Marshal(sels)
	if err != nil {
		return nil, fmt.Errorf("marshal selections: %w", err)
	}

	var finished *RowFinished
	saved, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Result, error) {
		row, err := lockRow(ctx, tx, current.TaskID, current.RowIndex)
		if err != nil {
			return Result{}, err
		}
		if row.Finished {
			return Result{}, ErrRowFinished
		}

		res, err := lockResult(ctx, tx, id)
		if err != nil {
			return Result{}, err
		}

		if err := repository.ExecExpectOne(ctx, tx, saveResultQuery, id, payload, nullable(category)); err != nil {
			return Result{}, fmt.Errorf("save result: %w", err)
		}
		first, err := repository.ExecCount(ctx, tx, finishResultQuery, id)
		if err != nil {
			return Result{}, fmt.Errorf("finish result: %w", err)
		}

		switch {
		case res.Round == RoundReview:
			finished, err = r.resolve(ctx, tx, res.TaskID, res.RowIndex, Label(sels), category)
		case first == 1:
			var completed, required int
			err = tx.QueryRowContext(ctx, completeRowQuery, res.TaskID, res.RowIndex).Scan(&completed, &required)
			if err != nil {
				return Result{}, fmt.Errorf("count completion: %w", err)
			}
			if completed >= required {
				finished, err = r.settle(ctx, tx, res.TaskID, res.RowIndex)
			}
		}
		if err != nil {
			return Result{}, err
		}

		updated, err := Get(ctx, tx, id)
		if err != nil {
			return Result{}, err
		}
		return *updated, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("result saved",
		"id", id,
		"task_id", saved.TaskID,
		"row", saved.RowIndex,
		"round", int(saved.Round),
		"settled", finished != nil,
	)
	if finished != nil {
		r.publish(ctx, events.SubjectRowFinished, *finished)
	}
	return &saved, nil
}

func (r *repo) Release(ctx context.Context, actor identity.Actor, taskID uuid.UUID) (*ReleaseReport, error) {
	report, err := r.release(ctx, taskID, manualGate(actor), false)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repo) ReleaseReview(ctx context.Context, actor identity.Actor, taskID uuid.UUID) (*ReleaseReport, error) {
	report, err := r.release(ctx, taskID, manualGate(actor), true)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func manualGate(actor identity.Actor) func(*tasks.Task) (bool, error) {
	return func(t *tasks.Task) (bool, error) {
		if !actor.CanManage(t.PublisherID) {
			return false, identity.ErrForbidden
		}
		if t.Status != tasks.StatusInProgress {
			return false, fmt.Errorf("%w: task is %s", ErrNotReleasable, t.Status)
		}
		return true, nil
	}
}

// release runs one pass over a task under its row lock. gate decides, against
// the locked task, whether the pass goes ahead. A reviews-only pass hands out
// pending reviews and leaves the distribution period alone.
func (r *repo) release(ctx context.Context, taskID uuid.UUID, gate func(*tasks.Task) (bool, error), reviews bool) (ReleaseReport, error) {
	start := time.Now()

	report, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (ReleaseReport, error) {
		t, err := tasks.Lock(ctx, tx, taskID)
		if err != nil {
			return ReleaseReport{}, err
		}
		ok, err := gate(t)
		if err != nil {
			return ReleaseReport{}, err
		}
		if !ok {
			return ReleaseReport{TaskID: taskID, Skipped: true}, nil
		}

		pool, err := loadPool(ctx, tx, t)
		if err != nil {
			return ReleaseReport{}, err
		}
		if reviews {
			pool.Rows = reviewsOnly(pool.Rows)
		}
		plan := Plan(pool)
		if err := assign(ctx, tx, t.ID, plan); err != nil {
			return ReleaseReport{}, err
		}
		if !reviews {
			if err := stamp(ctx, tx, t.ID, r.now()); err != nil {
				return ReleaseReport{}, err
			}
		}

		report := ReleaseReport{TaskID: taskID, Assignments: plan}
		for _, a := range plan {
			if a.Round == RoundReview {
				report.Reviews++
			} else {
				report.Released++
			}
		}
		return report, nil
	})

	if report.Skipped {
		return report, nil
	}
	r.metrics.ObserveRelease(time.Since(start), report.Released+report.Reviews, err)
	if err != nil {
		return report, err
	}

	r.logger.Info("batch released",
		"task_id", taskID,
		"released", report.Released,
		"reviews", report.Reviews,
		"duration", time.Since(start),
	)
	if len(report.Assignments) > 0 {
		r.publish(ctx, events.SubjectBatchReleased, report)
	}
	return report, nil
}

const releasableQuery = `
	SELECT id FROM tasks
	WHERE status = 'IN_PROGRESS' AND approved AND publish_cycle > 0
	ORDER BY created_at`

func (r *repo) ReleaseDue(ctx context.Context) (Summary, error) {
	ids, err := repository.QueryMany(ctx, r.db, releasableQuery, nil, func(s repository.Scanner) (uuid.UUID, error) {
		var id uuid.UUID
		err := s.Scan(&id)
		return id, err
	})
	if err != nil {
		return Summary{}, fmt.Errorf("query releasable tasks: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = Summary{Total: len(ids)}
		g       errgroup.Group
	)
	g.SetLimit(r.cfg.Concurrency)

	for _, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			report, err := r.release(ctx, id, func(t *tasks.Task) (bool, error) {
				return Due(t, r.now(), r.cfg.Location, r.cfg.MinuteCycle), nil
			}, false)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed++
				r.logger.Error("release failed", "task_id", id, "error", err)
			case report.Skipped:
				summary.Skipped++
			default:
				summary.Processed++
				summary.Released += report.Released + report.Reviews
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	r.logger.Info("scheduled release complete",
		"total", summary.Total,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

const dayResultsQuery = `
	SELECT ar.id, ar.row_index, ar.is_correct, tr.sent_to_review
	FROM annotation_results ar
	JOIN task_rows tr ON tr.task_id = ar.task_id AND tr.row_index = ar.row_index
	WHERE ar.task_id = $1 AND ar.worker_id = $2 AND ar.round = 0 AND ar.is_finished
		AND ar.finished_at >= $3 AND ar.finished_at < $4
	ORDER BY ar.row_index
	FOR UPDATE OF tr, ar`

type dayResult struct {
	id           uuid.UUID
	row          int
	correct      *bool
	sentToReview bool
}

func (r *repo) UndoByDay(ctx context.Context, actor identity.Actor, taskID uuid.UUID, workerID, date string) (UndoReport, error) {
	if workerID == "" {
		return UndoReport{}, ErrInvalidUndo
	}
	from, to, err := DayBounds(date, r.cfg.Location)
	if err != nil {
		return UndoReport{}, fmt.Errorf("%w: %w", ErrInvalidUndo, err)
	}

	owner, err := r.owner(ctx, taskID)
	if err != nil {
		return UndoReport{}, err
	}
	if !actor.CanManage(owner) {
		return UndoReport{}, ErrDateUndoDenied
	}

	report, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (UndoReport, error) {
		found, err := repository.QueryMany(ctx, tx, dayResultsQuery, []any{taskID, workerID, from, to},
			func(s repository.Scanner) (dayResult, error) {
				var d dayResult
				err := s.Scan(&d.id, &d.row, &d.correct, &d.sentToReview)
				return d, err
			})
		if err != nil {
			return UndoReport{}, fmt.Errorf("query day results: %w", err)
		}

		var report UndoReport
		for _, d := range found {
			switch {
			case d.sentToReview:
				report.SkippedSentToReview++
			case d.correct != nil && *d.correct:
				report.SkippedNotIncorrect++
			default:
				if err := unjudge(ctx, tx, taskID, d.row); err != nil {
					return UndoReport{}, err
				}
				res := &Result{ID: d.id, TaskID: taskID, RowIndex: d.row, Round: RoundLabel}
				if err := reopen(ctx, tx, res); err != nil {
					return UndoReport{}, err
				}
				report.Undone++
			}
		}
		return report, nil
	})
	if err != nil {
		return UndoReport{}, err
	}

	r.metrics.RecordUndo("day", report.Undone)
	r.logger.Info("day undone",
		"task_id", taskID,
		"worker_id", workerID,
		"date", date,
		"undone", report.Undone,
		"skipped_sent_to_review", report.SkippedSentToReview,
		"skipped_not_incorrect", report.SkippedNotIncorrect,
	)
	return report, nil
}

func (r *repo) UndoByRow(
	ctx context.Context,
	actor identity.Actor,
	taskID uuid.UUID,
	workerID string,
	rowIndex int,
	round Round,
) (UndoReport, error) {
	if workerID == "" || rowIndex < 0 || (round != RoundLabel && round != RoundReview) {
		return UndoReport{}, ErrInvalidUndo
	}

	owner, err := r.owner(ctx, taskID)
	if err != nil {
		return UndoReport{}, err
	}
	if !actor.CanUndo(owner, workerID) {
		return UndoReport{}, identity.ErrForbidden
	}

	report, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (UndoReport, error) {
		row, err := lockRow(ctx, tx, taskID, rowIndex)
		if err != nil {
			return UndoReport{}, err
		}
		res, err := lockWorkerResult(ctx, tx, taskID, rowIndex, workerID, round)
		if err != nil {
			return UndoReport{}, err
		}
		if !res.Finished {
			return UndoReport{}, nil
		}
		if round == RoundLabel && row.SentToReview {
			return UndoReport{}, ErrSentToReview
		}

		if err := unjudge(ctx, tx, taskID, rowIndex); err != nil {
			return UndoReport{}, err
		}
		if err := reopen(ctx, tx, res); err != nil {
			return UndoReport{}, err
		}
		return UndoReport{Undone: 1}, nil
	})
	if err != nil {
		return UndoReport{}, err
	}

	r.metrics.RecordUndo("row", report.Undone)
	r.logger.Info("row undone",
		"task_id", taskID,
		"worker_id", workerID,
		"row", rowIndex,
		"round", int(round),
		"undone", report.Undone,
	)
	return report, nil
}

func (r *repo) publish(ctx context.Context, subject string, data any) {
	if r.bus == nil {
		return
	}
	if err := events.PublishJSON(ctx, r.bus, subject, data); err != nil {
		r.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

package annotations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/internal/subtasks"
	"github.com/JaimeStill/labelhub/internal/tasks"
	"github.com/JaimeStill/labelhub/pkg/metrics"
	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

type repo struct {
	db      *sql.DB
	engines selection.EngineSource
	rows    datasets.Provider
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an annotation repository implementing the System interface.
func New(
	db *sql.DB,
	engines selection.EngineSource,
	rows datasets.Provider,
	m *metrics.Metrics,
	logger *slog.Logger,
) System {
	return &repo{
		db:      db,
		engines: engines,
		rows:    rows,
		metrics: m,
		logger:  logger.With("system", "annotations"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

// scope is a subtask together with the owner and dataset of its task.
type scope struct {
	subtask    *subtasks.Subtask
	ownerID    string
	datasetKey string
}

func loadScope(ctx context.Context, q repository.Querier, s *subtasks.Subtask) (*scope, error) {
	sc := &scope{subtask: s}
	err := q.QueryRowContext(ctx,
		"SELECT publisher_id, dataset_key FROM tasks WHERE id = $1",
		s.TaskID,
	).Scan(&sc.ownerID, &sc.datasetKey)
	if err != nil {
		return nil, repository.MapError(err, tasks.ErrNotFound, tasks.ErrDuplicate)
	}
	return sc, nil
}

func (sc *scope) canView(actor identity.Actor) bool {
	return sc.subtask.ClaimedBy(actor.ID) || actor.CanManage(sc.ownerID)
}

// round decides whether actor may edit selections now: the claimant while the
// subtask is IN_PROGRESS, the task owner or an administrator while it is
// PENDING_REVIEW.
func (sc *scope) round(actor identity.Actor) (Round, error) {
	switch sc.subtask.Status {
	case subtasks.StatusInProgress:
		if !sc.subtask.ClaimedBy(actor.ID) {
			return 0, identity.ErrForbidden
		}
		return RoundAnnotate, nil
	case subtasks.StatusPendingReview:
		if !actor.CanManage(sc.ownerID) {
			return 0, identity.ErrForbidden
		}
		return RoundReview, nil
	default:
		return 0, fmt.Errorf("%w: subtask is %s", ErrNotEditable, sc.subtask.Status)
	}
}

func (r *repo) List(ctx context.Context, actor identity.Actor, subtaskID uuid.UUID) ([]Annotation, error) {
	s, err := subtasks.Get(ctx, r.db, subtaskID)
	if err != nil {
		return nil, err
	}
	sc, err := loadScope(ctx, r.db, s)
	if err != nil {
		return nil, err
	}
	if !sc.canView(actor) {
		return nil, identity.ErrForbidden
	}

	q, args := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("SubtaskID", subtaskID).
		Build()

	items, err := repository.QueryMany(ctx, r.db, q, args, scanAnnotation)
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}

	sels, err := repository.QueryMany(ctx, r.db, selectionsQuery, []any{subtaskID}, scanSelection)
	if err != nil {
		return nil, fmt.Errorf("query selections: %w", err)
	}

	index := make(map[uuid.UUID]int, len(items))
	for i, a := range items {
		index[a.ID] = i
	}
	for _, s := range sels {
		if i, ok := index[s.annotationID]; ok {
			items[i].Selections = append(items[i].Selections, s.Selection)
		}
	}

	return items, nil
}

func (r *repo) Open(ctx context.Context, actor identity.Actor, subtaskID uuid.UUID, rowIndex int) (*Annotation, error) {
	a, _, err := r.open(ctx, actor, subtaskID, rowIndex)
	return a, err
}

func (r *repo) open(ctx context.Context, actor identity.Actor, subtaskID uuid.UUID, rowIndex int) (*Annotation, *scope, error) {
	s, err := subtasks.Get(ctx, r.db, subtaskID)
	if err != nil {
		return nil, nil, err
	}
	if !s.Contains(rowIndex) {
		return nil, nil, fmt.Errorf("%w: row %d not in [%d, %d)", ErrRowOutOfRange, rowIndex, s.StartRow, s.EndRow)
	}

	sc, err := loadScope(ctx, r.db, s)
	if err != nil {
		return nil, nil, err
	}
	if !sc.canView(actor) {
		return nil, nil, identity.ErrForbidden
	}

	a, err := find(ctx, r.db, subtaskID, rowIndex)
	if err == nil {
		return a, sc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	row, err := r.rows.Row(ctx, sc.datasetKey, rowIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("load row %d: %w", rowIndex, err)
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal row %d: %w", rowIndex, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO row_annotations(subtask_id, row_index, row_data)
		VALUES ($1, $2, $3)
		ON CONFLICT (subtask_id, row_index) DO NOTHING`,
		subtaskID, rowIndex, data,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create annotation: %w", err)
	}

	a, err = find(ctx, r.db, subtaskID, rowIndex)
	if err != nil {
		return nil, nil, err
	}

	r.logger.Debug("annotation opened", "subtask_id", subtaskID, "row", rowIndex)
	return a, sc, nil
}

func find(ctx context.Context, q repository.Querier, subtaskID uuid.UUID, rowIndex int) (*Annotation, error) {
	stmt, args := query.
		NewBuilder(projection).
		WhereEquals("SubtaskID", subtaskID).
		WhereEquals("RowIndex", rowIndex).
		BuildSingleOrNull()

	a, err := repository.QueryOne(ctx, q, stmt, args, scanAnnotation)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	sels, err := repository.QueryMany(ctx, q, `
		SELECT annotation_id, dimension_name, path_ids, path_names
		FROM annotation_selections
		WHERE annotation_id = $1
		ORDER BY position`,
		[]any{a.ID},
		scanSelection,
	)
	if err != nil {
		return nil, fmt.Errorf("query selections: %w", err)
	}
	for _, s := range sels {
		a.Selections = append(a.Selections, s.Selection)
	}

	return &a, nil
}

func (r *repo) Save(ctx context.Context, actor identity.Actor, subtaskID uuid.UUID, rowIndex int, cmd SaveCommand) (*Annotation, error) {
	a, sc, err := r.open(ctx, actor, subtaskID, rowIndex)
	if err != nil {
		return nil, err
	}
	if _, err := sc.round(actor); err != nil {
		return nil, err
	}

	sels, err := r.finalize(ctx, sc.subtask.TaskID, cmd.Selections)
	if err != nil {
		return nil, err
	}

	round, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Round, error) {
		locked, err := subtasks.Lock(ctx, tx, subtaskID)
		if err != nil {
			return 0, err
		}
		current := &scope{subtask: locked, ownerID: sc.ownerID, datasetKey: sc.datasetKey}
		round, err := current.round(actor)
		if err != nil {
			return 0, err
		}

		if err := ReplaceSelections(ctx, tx, a.ID, sels); err != nil {
			return 0, err
		}
		return round, nil
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.metrics.RecordSelectionSave(int(round))
	r.logger.Info("selections saved",
		"subtask_id", subtaskID,
		"row", rowIndex,
		"round", int(round),
		"count", len(sels),
	)

	a.Selections = sels
	return a, nil
}

func (r *repo) SetStatus(ctx context.Context, actor identity.Actor, subtaskID uuid.UUID, rowIndex int, cmd StatusCommand) (*Annotation, error) {
	if !cmd.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, cmd.Status)
	}

	a, sc, err := r.open(ctx, actor, subtaskID, rowIndex)
	if err != nil {
		return nil, err
	}
	if round, err := sc.round(actor); err != nil {
		return nil, err
	} else if round != RoundReview {
		return nil, fmt.Errorf("%w: subtask is not under review", ErrNotEditable)
	}

	var sels []selection.Selection
	if cmd.Selections != nil {
		if sels, err = r.finalize(ctx, sc.subtask.TaskID, *cmd.Selections); err != nil {
			return nil, err
		}
	}

	_, err = repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		locked, err := subtasks.Lock(ctx, tx, subtaskID)
		if err != nil {
			return struct{}{}, err
		}
		if locked.Status != subtasks.StatusPendingReview {
			return struct{}{}, fmt.Errorf("%w: subtask is %s", ErrNotEditable, locked.Status)
		}

		err = repository.ExecExpectOne(ctx, tx,
			"UPDATE row_annotations SET status = $2, updated_at = NOW() WHERE id = $1",
			a.ID, cmd.Status,
		)
		if err != nil {
			return struct{}{}, fmt.Errorf("update row status: %w", err)
		}

		if cmd.Selections != nil {
			return struct{}{}, ReplaceSelections(ctx, tx, a.ID, sels)
		}
		return struct{}{}, nil
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if cmd.Selections != nil {
		a.Selections = sels
		r.metrics.RecordSelectionSave(int(RoundReview))
	}
	a.Status = cmd.Status

	r.logger.Info("row status set",
		"subtask_id", subtaskID,
		"row", rowIndex,
		"status", cmd.Status,
		"reviewer", actor.ID,
	)
	return a, nil
}

// finalize prepares posted selections for storage with the task's engine.
func (r *repo) finalize(ctx context.Context, taskID uuid.UUID, posted []selection.Selection) ([]selection.Selection, error) {
	engine, err := r.engines.Engine(ctx, taskID)
	if err != nil {
		return nil, err
	}

	sels := engine.Finalize(posted)
	if err := engine.Validate(sels); err != nil {
		return nil, err
	}
	return sels, nil
}

// ReplaceSelections deletes the stored selections of an annotation and
// inserts sels in their place. Run it inside a transaction so a failure
// leaves the previous set intact.
func ReplaceSelections(ctx context.Context, e repository.Executor, annotationID uuid.UUID, sels []selection.Selection) error {
	if _, err := e.ExecContext(ctx, "DELETE FROM annotation_selections WHERE annotation_id = $1", annotationID); err != nil {
		return fmt.Errorf("delete selections: %w", err)
	}

	if len(sels) > 0 {
		var sb strings.Builder
		sb.WriteString("INSERT INTO annotation_selections(annotation_id, position, dimension_name, path_ids, path_names) VALUES ")

		args := make([]any, 0, len(sels)*4+1)
		args = append(args, annotationID)
		for i, s := range sels {
			ids, err := json.Marshal(s.PathIDs)
			if err != nil {
				return fmt.Errorf("marshal path ids: %w", err)
			}
			names, err := json.Marshal(s.PathNames)
			if err != nil {
				return fmt.Errorf("marshal path names: %w", err)
			}

			if i > 0 {
				sb.WriteString(", ")
			}
			n := len(args)
			fmt.Fprintf(&sb, "($1, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
			args = append(args, i, s.DimensionName, ids, names)
		}

		if _, err := e.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("insert selections: %w", err)
		}
	}

	if _, err := e.ExecContext(ctx, "UPDATE row_annotations SET updated_at = NOW() WHERE id = $1", annotationID); err != nil {
		return fmt.Errorf("touch annotation: %w", err)
	}
	return nil
}

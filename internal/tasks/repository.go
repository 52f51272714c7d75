package tasks

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/requirements"
	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/internal/taxonomy"
	"github.com/JaimeStill/labelhub/pkg/events"
	"github.com/JaimeStill/labelhub/pkg/pagination"
	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
	"github.com/JaimeStill/labelhub/pkg/storage"
)

type repo struct {
	db           *sql.DB
	storage      storage.System
	taxa         taxonomy.Provider
	rows         datasets.Provider
	bus          events.Bus
	selection    selection.Config
	publishLimit int
	logger       *slog.Logger
	pagination   pagination.Config
}

// New creates a task repository implementing the System interface.
// publishLimit is the per-cycle assignment cap for tasks that do not set one.
// A nil bus disables the task created event.
func New(
	db *sql.DB,
	store storage.System,
	taxa taxonomy.Provider,
	rows datasets.Provider,
	bus events.Bus,
	sel selection.Config,
	publishLimit int,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:           db,
		storage:      store,
		taxa:         taxa,
		rows:         rows,
		bus:          bus,
		selection:    sel,
		publishLimit: publishLimit,
		logger:       logger.With("system", "tasks"),
		pagination:   pagination,
	}
}

func (r *repo) Handler(maxUploadSize int64) *Handler {
	return NewHandler(r, r.logger, r.pagination, maxUploadSize)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Task], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Title", "Description")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanTask)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Task, error) {
	return Get(ctx, r.db, id)
}

func (r *repo) Create(ctx context.Context, actor identity.Actor, cmd CreateCommand) (*Task, error) {
	if !actor.CanPublish() {
		return nil, identity.ErrForbidden
	}
	cmd.PublisherID = actor.ID

	if err := r.normalize(&cmd); err != nil {
		return nil, err
	}

	tax, err := taxonomy.Load(cmd.Taxonomy.Name, bytes.NewReader(cmd.Taxonomy.Data))
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	rows, err := datasets.Parse(cmd.Dataset.Name, bytes.NewReader(cmd.Dataset.Data))
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	requirement, err := json.Marshal(requirements.Uniform(tax.FirstLevelNames()))
	if err != nil {
		return nil, fmt.Errorf("marshal requirement vector: %w", err)
	}

	id := uuid.New()
	taxKey := buildStorageKey(id, "taxonomy", cmd.Taxonomy.Name)
	dataKey := buildStorageKey(id, "dataset", cmd.Dataset.Name)

	if err := r.storage.Upload(ctx, taxKey, bytes.NewReader(cmd.Taxonomy.Data), cmd.Taxonomy.ContentType); err != nil {
		return nil, fmt.Errorf("upload taxonomy blob: %w", err)
	}
	if err := r.storage.Upload(ctx, dataKey, bytes.NewReader(cmd.Dataset.Data), cmd.Dataset.ContentType); err != nil {
		r.compensate(ctx, taxKey)
		return nil, fmt.Errorf("upload dataset blob: %w", err)
	}

	spans := Split(len(rows), cmd.RowsPerSubtask, cmd.PointsPerSubtask)

	insertArgs := []any{
		id,
		cmd.PublisherID,
		cmd.Title,
		cmd.Description,
		cmd.MaxWorkers,
		len(rows),
		cmd.RowsPerSubtask,
		cmd.RequiredCount,
		cmd.PublishCycle,
		cmd.PublishLimit,
		taxKey,
		dataKey,
	}

	t, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Task, error) {
		t, err := repository.QueryOne(ctx, tx, insertTaskQuery, insertArgs, scanTask)
		if err != nil {
			return Task{}, fmt.Errorf("insert task: %w", err)
		}

		if err := insertSubtasks(ctx, tx, id, spans); err != nil {
			return Task{}, fmt.Errorf("insert subtasks: %w", err)
		}

		if _, err := tx.ExecContext(ctx, insertRowsQuery, id, cmd.RequiredCount, requirement, len(rows)); err != nil {
			return Task{}, fmt.Errorf("insert task rows: %w", err)
		}

		return t, nil
	})

	if err != nil {
		r.compensate(ctx, taxKey, dataKey)
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("task created",
		"id", t.ID,
		"publisher_id", t.PublisherID,
		"rows", t.RowCount,
		"subtasks", len(spans),
	)
	if r.bus != nil {
		req := requirements.Request{TaskID: t.ID, TaxonomyKey: taxKey, DatasetKey: dataKey}
		if err := events.PublishJSON(ctx, r.bus, events.SubjectTaskCreated, req); err != nil {
			r.logger.Warn("event publish failed", "subject", events.SubjectTaskCreated, "error", err)
		}
	}
	return &t, nil
}

const insertTaskQuery = `
	INSERT INTO tasks(
		id, publisher_id, title, description, max_workers, row_count,
		rows_per_subtask, required_count, publish_cycle, publish_limit,
		taxonomy_key, dataset_key
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING ` + returning

const insertRowsQuery = `
	INSERT INTO task_rows(task_id, row_index, required_count, requirement_vector)
	SELECT $1, g, $2, $3
	FROM generate_series(0, $4 - 1) AS g`

func insertSubtasks(ctx context.Context, e repository.Executor, taskID uuid.UUID, spans []Span) error {
	if len(spans) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO subtasks(task_id, start_row, end_row, points) VALUES ")

	args := make([]any, 0, len(spans)*3+1)
	args = append(args, taskID)
	for i, s := range spans {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&sb, "($1, $%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, s.Start, s.End, s.Points)
	}

	_, err := e.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *repo) normalize(cmd *CreateCommand) error {
	cmd.Title = strings.TrimSpace(cmd.Title)
	if cmd.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if len(cmd.Taxonomy.Data) == 0 || len(cmd.Dataset.Data) == 0 {
		return fmt.Errorf("%w: taxonomy and dataset files are required", ErrInvalidFile)
	}

	if cmd.MaxWorkers == 0 {
		cmd.MaxWorkers = DefaultMaxWorkers
	}
	if cmd.RowsPerSubtask == 0 {
		cmd.RowsPerSubtask = DefaultRowsPerSubtask
	}
	if cmd.RequiredCount == 0 {
		cmd.RequiredCount = DefaultRequiredCount
	}
	if cmd.PublishLimit == 0 {
		cmd.PublishLimit = r.publishLimit
	}

	switch {
	case cmd.MaxWorkers < 1:
		return fmt.Errorf("%w: max_workers must be positive", ErrInvalidTask)
	case cmd.RowsPerSubtask < 1:
		return fmt.Errorf("%w: rows_per_subtask must be positive", ErrInvalidTask)
	case cmd.PointsPerSubtask < 0:
		return fmt.Errorf("%w: points_per_subtask cannot be negative", ErrInvalidTask)
	case cmd.RequiredCount < 1 || cmd.RequiredCount > cmd.MaxWorkers:
		return fmt.Errorf("%w: required_count must be between 1 and max_workers", ErrInvalidTask)
	case cmd.PublishCycle < 0:
		return fmt.Errorf("%w: publish_cycle cannot be negative", ErrInvalidTask)
	case cmd.PublishLimit < 1:
		return fmt.Errorf("%w: publish_limit must be positive", ErrInvalidTask)
	}
	return nil
}

func (r *repo) Approve(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Task, error) {
	if !actor.IsAdmin() {
		return nil, identity.ErrForbidden
	}

	q := `
		UPDATE tasks SET approved = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + returning

	t, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanTask)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("task approved", "id", id, "by", actor.ID)
	return &t, nil
}

func (r *repo) Publish(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Task, error) {
	q := `
		UPDATE tasks SET status = 'IN_PROGRESS', updated_at = NOW()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING ` + returning

	t, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Task, error) {
		current, err := Lock(ctx, tx, id)
		if err != nil {
			return Task{}, err
		}
		if !actor.CanManage(current.PublisherID) {
			return Task{}, identity.ErrForbidden
		}
		if !current.Approved {
			return Task{}, ErrNotApproved
		}

		t, err := repository.QueryOne(ctx, tx, q, []any{id}, scanTask)
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, fmt.Errorf("%w: task is %s", ErrInvalidTransition, current.Status)
		}
		return t, err
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("task published", "id", id, "by", actor.ID)
	return &t, nil
}

func (r *repo) Delete(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	t, err := r.Find(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(t.PublisherID) {
		return identity.ErrForbidden
	}

	_, err = repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecExpectOne(ctx, tx, "DELETE FROM tasks WHERE id = $1", id)
	})

	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.compensate(ctx, t.TaxonomyKey, t.DatasetKey)
	r.taxa.Evict(t.TaxonomyKey)
	r.rows.Evict(t.DatasetKey)

	r.logger.Info("task deleted", "id", id)
	return nil
}

func (r *repo) Taxonomy(ctx context.Context, id uuid.UUID) (*taxonomy.Taxonomy, error) {
	t, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.taxa.Load(ctx, t.TaxonomyKey)
}

func (r *repo) Engine(ctx context.Context, id uuid.UUID) (*selection.Engine, error) {
	tax, err := r.Taxonomy(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", selection.ErrTaskNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	return selection.New(tax, r.selection), nil
}

func (r *repo) compensate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := r.storage.Delete(ctx, key); err != nil {
			r.logger.Warn("blob delete failed", "key", key, "error", err)
		}
	}
}

func buildStorageKey(id uuid.UUID, kind, filename string) string {
	return fmt.Sprintf("tasks/%s/%s/%s", id, kind, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(filepath.Base(name), "..", ".")
	if name == "." || name == "" || name == "/" {
		name = "upload"
	}
	return url.PathEscape(name)
}

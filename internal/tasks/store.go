package tasks

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

// Get loads a task without locking it.
func Get(ctx context.Context, q repository.Querier, id uuid.UUID) (*Task, error) {
	sql, args := query.NewBuilder(projection).BuildSingle("ID", id)

	t, err := repository.QueryOne(ctx, q, sql, args, scanTask)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &t, nil
}

// Lock loads and row-locks a task inside a transaction. Claims serialize on it.
func Lock(ctx context.Context, q repository.Querier, id uuid.UUID) (*Task, error) {
	sql, args := query.NewBuilder(projection).BuildSingleForUpdate("ID", id)

	t, err := repository.QueryOne(ctx, q, sql, args, scanTask)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &t, nil
}

// AddWorker counts one more claim against the task and moves it to
// IN_PROGRESS once the claim exhausts the worker quota.
func AddWorker(ctx context.Context, e repository.Executor, id uuid.UUID) error {
	return repository.ExecExpectOne(ctx, e, `
		UPDATE tasks
		SET worker_count = worker_count + 1,
			status = CASE WHEN worker_count + 1 >= max_workers THEN 'IN_PROGRESS' ELSE status END,
			updated_at = NOW()
		WHERE id = $1`,
		id,
	)
}

// CompleteIfDone marks the task COMPLETED when every one of its subtasks is
// COMPLETED and reports whether it did.
func CompleteIfDone(ctx context.Context, e repository.Executor, id uuid.UUID) (bool, error) {
	n, err := repository.ExecCount(ctx, e, `
		UPDATE tasks
		SET status = 'COMPLETED', updated_at = NOW()
		WHERE id = $1
			AND status <> 'COMPLETED'
			AND NOT EXISTS (
				SELECT 1 FROM subtasks WHERE task_id = $1 AND status <> 'COMPLETED'
			)`,
		id,
	)
	return n > 0, err
}

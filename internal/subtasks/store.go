package subtasks

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

// Lock loads and row-locks a subtask inside a transaction.
func Lock(ctx context.Context, q repository.Querier, id uuid.UUID) (*Subtask, error) {
	sql, args := query.NewBuilder(projection).BuildSingleForUpdate("ID", id)

	s, err := repository.QueryOne(ctx, q, sql, args, scanSubtask)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &s, nil
}

// Get loads a subtask without locking it.
func Get(ctx context.Context, q repository.Querier, id uuid.UUID) (*Subtask, error) {
	sql, args := query.NewBuilder(projection).BuildSingle("ID", id)

	s, err := repository.QueryOne(ctx, q, sql, args, scanSubtask)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &s, nil
}

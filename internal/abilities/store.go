package abilities

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

const upsertQuery = `
	INSERT INTO worker_abilities(
		worker_id, task_id, ability_vector, vector_length, alpha_values,
		correct_counts, total_counts, avg_score, min_score, max_score, total_annotations
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (worker_id, task_id) DO UPDATE SET
		ability_vector = EXCLUDED.ability_vector,
		vector_length = EXCLUDED.vector_length,
		alpha_values = EXCLUDED.alpha_values,
		correct_counts = EXCLUDED.correct_counts,
		total_counts = EXCLUDED.total_counts,
		avg_score = EXCLUDED.avg_score,
		min_score = EXCLUDED.min_score,
		max_score = EXCLUDED.max_score,
		total_annotations = EXCLUDED.total_annotations,
		updated_at = NOW()`

// Upsert writes v keyed by worker and task, replacing every stored counter
// and score. It runs on whatever executor it is given so callers can make it
// part of a larger transaction.
func Upsert(ctx context.Context, e repository.Executor, v Vector) error {
	args, err := upsertArgs(v)
	if err != nil {
		return err
	}
	if _, err := e.ExecContext(ctx, upsertQuery, args...); err != nil {
		return fmt.Errorf("upsert ability vector: %w", err)
	}
	return nil
}

func upsertArgs(v Vector) ([]any, error) {
	scores, err := json.Marshal(v.Scores)
	if err != nil {
		return nil, fmt.Errorf("marshal scores: %w", err)
	}
	alpha, err := json.Marshal(v.Alpha)
	if err != nil {
		return nil, fmt.Errorf("marshal alpha: %w", err)
	}
	correct, err := json.Marshal(v.Correct)
	if err != nil {
		return nil, fmt.Errorf("marshal correct counts: %w", err)
	}
	total, err := json.Marshal(v.Total)
	if err != nil {
		return nil, fmt.Errorf("marshal total counts: %w", err)
	}

	return []any{
		v.WorkerID,
		v.TaskID,
		scores,
		v.VectorLength,
		alpha,
		correct,
		total,
		v.AvgScore,
		v.MinScore,
		v.MaxScore,
		v.TotalAnnotations,
	}, nil
}

// Lock loads and row-locks the vector for workerID on taskID inside a transaction.
func Lock(ctx context.Context, q repository.Querier, taskID uuid.UUID, workerID string) (*Vector, error) {
	sql, args := query.NewBuilder(projection).
		WhereEquals("TaskID", taskID).
		WhereEquals("WorkerID", workerID).
		BuildSingleOrNull()

	v, err := repository.QueryOne(ctx, q, sql+" FOR UPDATE", args, scanVector)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &v, nil
}

// ForTask returns every vector recorded for taskID ordered by worker.
func ForTask(ctx context.Context, q repository.Querier, taskID uuid.UUID) ([]Vector, error) {
	sql, args := query.NewBuilder(projection, query.SortField{Field: "WorkerID"}).
		WhereEquals("TaskID", taskID).
		Build()

	vectors, err := repository.QueryMany(ctx, q, sql, args, scanVector)
	if err != nil {
		return nil, fmt.Errorf("query ability vectors: %w", err)
	}
	return vectors, nil
}

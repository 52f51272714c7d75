package distribution

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/abilities"
	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

const lockRowQuery = `
	SELECT ` + rowColumns + `
	FROM task_rows
	WHERE task_id = $1 AND row_index = $2
	FOR UPDATE`

func lockRow(ctx context.Context, q repository.Querier, taskID uuid.UUID, index int) (Row, error) {
	row, err := repository.QueryOne(ctx, q, lockRowQuery, []any{taskID, index}, scanRow)
	if err != nil {
		return Row{}, repository.MapError(err, ErrRowNotFound, ErrDuplicate)
	}
	return row, nil
}

// Get loads a result by id.
func Get(ctx context.Context, q repository.Querier, id uuid.UUID) (*Result, error) {
	sql, args := query.NewBuilder(projection).BuildSingle("ID", id)
	r, err := repository.QueryOne(ctx, q, sql, args, scanResult)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &r, nil
}

func lockResult(ctx context.Context, q repository.Querier, id uuid.UUID) (*Result, error) {
	sql, args := query.NewBuilder(projection).BuildSingleForUpdate("ID", id)
	r, err := repository.QueryOne(ctx, q, sql, args, scanResult)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &r, nil
}

func lockWorkerResult(ctx context.Context, q repository.Querier, taskID uuid.UUID, index int, workerID string, round Round) (*Result, error) {
	sql, args := query.NewBuilder(projection).
		WhereEquals("TaskID", taskID).
		WhereEquals("RowIndex", index).
		WhereEquals("WorkerID", workerID).
		WhereEquals("Round", int(round)).
		BuildSingleOrNull()

	r, err := repository.QueryOne(ctx, q, sql+" FOR UPDATE", args, scanResult)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &r, nil
}

// lockVectors row-locks the ability vectors of workers in id order. Workers
// without a vector map to nil.
func lockVectors(ctx context.Context, q repository.Querier, taskID uuid.UUID, results []Result) (map[string]*abilities.Vector, error) {
	workers := make([]string, 0, len(results))
	for _, r := range results {
		workers = append(workers, r.WorkerID)
	}
	slices.Sort(workers)
	workers = slices.Compact(workers)

	vectors := make(map[string]*abilities.Vector, len(workers))
	for _, w := range workers {
		v, err := abilities.Lock(ctx, q, taskID, w)
		if errors.Is(err, abilities.ErrNotFound) {
			vectors[w] = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock ability of %s: %w", w, err)
		}
		vectors[w] = v
	}
	return vectors, nil
}

const ballotsQuery = `
	SELECT ` + returning + `
	FROM annotation_results
	WHERE task_id = $1 AND row_index = $2 AND round = 0 AND is_finished
	ORDER BY finished_at, worker_id`

const judgeQuery = `
	UPDATE annotation_results
	SET is_correct = $2, category = $3, updated_at = NOW()
	WHERE id = $1`

const finishRowQuery = `
	UPDATE task_rows
	SET is_finished = TRUE, need_to_review = FALSE, updated_at = NOW()
	WHERE task_id = $1 AND row_index = $2`

const flagReviewQuery = `
	UPDATE task_rows
	SET need_to_review = TRUE, updated_at = NOW()
	WHERE task_id = $1 AND row_index = $2`

// settle votes on a row whose labeling results are all in. An agreed row is
// judged and finished; otherwise it is flagged for review and nil returned.
func (r *repo) settle(ctx context.Context, tx repository.DBTX, taskID uuid.UUID, index int) (*RowFinished, error) {
	results, err := repository.QueryMany(ctx, tx, ballotsQuery, []any{taskID, index}, scanResult)
	if err != nil {
		return nil, fmt.Errorf("query ballots: %w", err)
	}
	vectors, err := lockVectors(ctx, tx, taskID, results)
	if err != nil {
		return nil, err
	}

	ballots := make([]Ballot, 0, len(results))
	for _, res := range results {
		category := deref(res.Category)
		ballots = append(ballots, Ballot{
			WorkerID: res.WorkerID,
			Label:    Label(res.Selections),
			Category: category,
			Weight:   Weight(vectors[res.WorkerID], category),
		})
	}

	v := Decide(ballots, r.cfg.Threshold)
	if !v.Agreed {
		if err := repository.ExecExpectOne(ctx, tx, flagReviewQuery, taskID, index); err != nil {
			return nil, repository.MapError(err, ErrRowNotFound, ErrDuplicate)
		}
		r.metrics.RecordConsensus("review")
		r.logger.Info("row sent to review", "task_id", taskID, "row", index, "share", v.Share)
		return nil, nil
	}

	if err := judge(ctx, tx, taskID, results, vectors, v.Label, v.Category); err != nil {
		return nil, err
	}
	if err := repository.ExecExpectOne(ctx, tx, finishRowQuery, taskID, index); err != nil {
		return nil, repository.MapError(err, ErrRowNotFound, ErrDuplicate)
	}
	r.metrics.RecordConsensus("agreed")

	return &RowFinished{
		TaskID:   taskID,
		RowIndex: index,
		Label:    v.Label,
		Category: v.Category,
		Share:    v.Share,
	}, nil
}

// resolve finishes a reviewed row, taking the reviewer's label as the truth
// for every labeling result.
func (r *repo) resolve(ctx context.Context, tx repository.DBTX, taskID uuid.UUID, index int, label, category string) (*RowFinished, error) {
	results, err := repository.QueryMany(ctx, tx, ballotsQuery, []any{taskID, index}, scanResult)
	if err != nil {
		return nil, fmt.Errorf("query ballots: %w", err)
	}
	vectors, err := lockVectors(ctx, tx, taskID, results)
	if err != nil {
		return nil, err
	}

	if err := judge(ctx, tx, taskID, results, vectors, label, category); err != nil {
		return nil, err
	}
	if err := repository.ExecExpectOne(ctx, tx, finishRowQuery, taskID, index); err != nil {
		return nil, repository.MapError(err, ErrRowNotFound, ErrDuplicate)
	}
	r.metrics.RecordConsensus("reviewed")

	return &RowFinished{
		TaskID:   taskID,
		RowIndex: index,
		Label:    label,
		Category: category,
		Share:    1,
		Reviewed: true,
	}, nil
}

// judge marks each result against the winning label and records one
// observation per worker in category.
func judge(
	ctx context.Context,
	e repository.Executor,
	taskID uuid.UUID,
	results []Result,
	vectors map[string]*abilities.Vector,
	truth, category string,
) error {
	for _, res := range results {
		correct := Label(res.Selections) == truth
		if err := repository.ExecExpectOne(ctx, e, judgeQuery, res.ID, correct, nullable(category)); err != nil {
			return fmt.Errorf("judge result %s: %w", res.ID, repository.MapError(err, ErrNotFound, ErrDuplicate))
		}
		if category == "" {
			continue
		}

		v := vectors[res.WorkerID]
		if v == nil {
			v = &abilities.Vector{WorkerID: res.WorkerID, TaskID: taskID}
			vectors[res.WorkerID] = v
		}
		v.Record(category, correct)
		if err := abilities.Upsert(ctx, e, *v); err != nil {
			return err
		}
	}
	return nil
}

const judgedQuery = `
	SELECT ` + returning + `
	FROM annotation_results
	WHERE task_id = $1 AND row_index = $2 AND is_correct IS NOT NULL
	ORDER BY worker_id
	FOR UPDATE`

const clearJudgementQuery = `
	UPDATE annotation_results
	SET is_correct = NULL, updated_at = NOW()
	WHERE task_id = $1 AND row_index = $2 AND is_correct IS NOT NULL`

// unjudge withdraws a row's verdict: every recorded observation is reversed
// and every judgement cleared, so the row can be voted on again.
func unjudge(ctx context.Context, tx repository.DBTX, taskID uuid.UUID, index int) error {
	results, err := repository.QueryMany(ctx, tx, judgedQuery, []any{taskID, index}, scanResult)
	if err != nil {
		return fmt.Errorf("query judged results: %w", err)
	}
	if len(results) == 0 {
		return nil
	}

	vectors, err := lockVectors(ctx, tx, taskID, results)
	if err != nil {
		return err
	}

	var touched []string
	for _, res := range results {
		v := vectors[res.WorkerID]
		if v == nil || res.Category == nil || res.Correct == nil {
			continue
		}
		v.Reverse(*res.Category, *res.Correct)
		if !slices.Contains(touched, res.WorkerID) {
			touched = append(touched, res.WorkerID)
		}
	}
	for _, w := range touched {
		if err := abilities.Upsert(ctx, tx, *vectors[w]); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, clearJudgementQuery, taskID, index); err != nil {
		return fmt.Errorf("clear judgements: %w", err)
	}
	return nil
}

const reopenResultQuery = `
	UPDATE annotation_results
	SET selections = '[]', is_finished = FALSE, is_correct = NULL, finished_at = NULL, updated_at = NOW()
	WHERE id = $1`

const reopenRowQuery = `
	UPDATE task_rows
	SET completed_count = GREATEST(completed_count - $3, 0), is_finished = FALSE, need_to_review = $4, updated_at = NOW()
	WHERE task_id = $1 AND row_index = $2`

// reopen returns a finished result to an annotatable state after the row's
// verdict has been withdrawn. A labeling result gives back its completion; a
// review result leaves the row waiting on its reviewer.
func reopen(ctx context.Context, e repository.Executor, res *Result) error {
	if err := repository.ExecExpectOne(ctx, e, reopenResultQuery, res.ID); err != nil {
		return fmt.Errorf("reopen result: %w", repository.MapError(err, ErrNotFound, ErrDuplicate))
	}

	completed, review := 1, false
	if res.Round == RoundReview {
		completed, review = 0, true
	}
	if err := repository.ExecExpectOne(ctx, e, reopenRowQuery, res.TaskID, res.RowIndex, completed, review); err != nil {
		return fmt.Errorf("reopen row: %w", repository.MapError(err, ErrRowNotFound, ErrDuplicate))
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

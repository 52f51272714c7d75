package distribution

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/abilities"
	"github.com/JaimeStill/labelhub/internal/tasks"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

// Assignment hands one row to one worker in a round.
type Assignment struct {
	RowIndex int    `json:"row_index"`
	WorkerID string `json:"worker_id"`
	Round    Round  `json:"round"`
}

// Pool is the state a release pass plans against.
type Pool struct {
	Rows       []Row
	Candidates []Candidate
	// Reviewers are the task's designated reviewers, the only workers a
	// review goes to.
	Reviewers []Candidate
	// Holders lists, per row, the workers already holding a result for it.
	Holders map[int]map[string]bool
	// Received counts each worker's assignments in the current period.
	Received map[string]int
	Limit    int
}

// Plan assigns rows in index order. A row short of its required results goes
// to the best-matching eligible candidates; a row flagged for review and not
// yet sent goes to the single best eligible designated reviewer. A worker is
// eligible while under the period limit and not already holding the row, so a
// review never returns to one of the row's labelers.
func Plan(p Pool) []Assignment {
	received := make(map[string]int, len(p.Received))
	for w, n := range p.Received {
		received[w] = n
	}

	var out []Assignment
	for _, row := range p.Rows {
		if row.Finished {
			continue
		}

		want, round := 0, RoundLabel
		switch {
		case row.Published < row.Required:
			want = row.Required - row.Published
		case row.NeedReview && !row.SentToReview:
			want, round = 1, RoundReview
		}
		if want == 0 {
			continue
		}

		pool := p.Candidates
		if round == RoundReview {
			pool = p.Reviewers
		}

		eligible := make([]Candidate, 0, len(pool))
		for _, c := range pool {
			if p.Holders[row.Index][c.WorkerID] || received[c.WorkerID] >= p.Limit {
				continue
			}
			eligible = append(eligible, c)
		}

		for _, c := range Rank(row.Requirement, eligible) {
			if want == 0 {
				break
			}
			out = append(out, Assignment{RowIndex: row.Index, WorkerID: c.WorkerID, Round: round})
			received[c.WorkerID]++
			want--
		}
	}
	return out
}

const openRowsQuery = `
	SELECT ` + rowColumns + `
	FROM task_rows
	WHERE task_id = $1 AND NOT is_finished
		AND (published_count < required_count OR (need_to_review AND NOT sent_to_review))
	ORDER BY row_index`

const holdersQuery = `
	SELECT ar.row_index, ar.worker_id
	FROM annotation_results ar
	JOIN task_rows tr ON tr.task_id = ar.task_id AND tr.row_index = ar.row_index
	WHERE ar.task_id = $1 AND NOT tr.is_finished`

const receivedQuery = `
	SELECT worker_id, COUNT(*)
	FROM annotation_results
	WHERE task_id = $1 AND assigned_at >= $2
	GROUP BY worker_id`

func loadPool(ctx context.Context, q repository.Querier, t *tasks.Task) (Pool, error) {
	p := Pool{
		Holders:  make(map[int]map[string]bool),
		Received: make(map[string]int),
		Limit:    t.PublishLimit,
	}

	rows, err := repository.QueryMany(ctx, q, openRowsQuery, []any{t.ID}, scanRow)
	if err != nil {
		return p, fmt.Errorf("query open rows: %w", err)
	}
	p.Rows = rows
	if len(rows) == 0 {
		return p, nil
	}

	vectors, err := abilities.ForTask(ctx, q, t.ID)
	if err != nil {
		return p, err
	}
	scores := make(map[string]map[string]float64, len(vectors))
	for _, v := range vectors {
		p.Candidates = append(p.Candidates, Candidate{WorkerID: v.WorkerID, Scores: v.Scores})
		scores[v.WorkerID] = v.Scores
	}

	reviewers, err := tasks.ReviewerIDs(ctx, q, t.ID)
	if err != nil {
		return p, err
	}
	for _, id := range reviewers {
		p.Reviewers = append(p.Reviewers, Candidate{WorkerID: id, Scores: scores[id]})
	}

	type holder struct {
		row    int
		worker string
	}
	holders, err := repository.QueryMany(ctx, q, holdersQuery, []any{t.ID}, func(s repository.Scanner) (holder, error) {
		var h holder
		err := s.Scan(&h.row, &h.worker)
		return h, err
	})
	if err != nil {
		return p, fmt.Errorf("query row holders: %w", err)
	}
	for _, h := range holders {
		if p.Holders[h.row] == nil {
			p.Holders[h.row] = make(map[string]bool)
		}
		p.Holders[h.row][h.worker] = true
	}

	periodStart := t.CreatedAt
	if t.LastProcessedAt != nil {
		periodStart = *t.LastProcessedAt
	}
	type count struct {
		worker string
		n      int
	}
	counts, err := repository.QueryMany(ctx, q, receivedQuery, []any{t.ID, periodStart}, func(s repository.Scanner) (count, error) {
		var c count
		err := s.Scan(&c.worker, &c.n)
		return c, err
	})
	if err != nil {
		return p, fmt.Errorf("query period assignments: %w", err)
	}
	for _, c := range counts {
		p.Received[c.worker] = c.n
	}

	return p, nil
}

const bumpRowQuery = `
	UPDATE task_rows
	SET published_count = published_count + $3, sent_to_review = sent_to_review OR $4, updated_at = NOW()
	WHERE task_id = $1 AND row_index = $2`

const stampQuery = `UPDATE tasks SET last_processed_at = $2, updated_at = NOW() WHERE id = $1`

// assign writes the planned results and row counters.
func assign(ctx context.Context, e repository.Executor, taskID uuid.UUID, plan []Assignment) error {
	if len(plan) == 0 {
		return nil
	}

	values := make([]string, 0, len(plan))
	args := []any{taskID}
	for _, a := range plan {
		n := len(args)
		values = append(values, fmt.Sprintf("($1, $%d, $%d, $%d)", n+1, n+2, n+3))
		args = append(args, a.RowIndex, a.WorkerID, int(a.Round))
	}
	insert := "INSERT INTO annotation_results(task_id, row_index, worker_id, round) VALUES " +
		strings.Join(values, ", ")
	if _, err := e.ExecContext(ctx, insert, args...); err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	type bump struct {
		published int
		review    bool
	}
	var order []int
	bumps := make(map[int]*bump)
	for _, a := range plan {
		b, ok := bumps[a.RowIndex]
		if !ok {
			b = &bump{}
			bumps[a.RowIndex] = b
			order = append(order, a.RowIndex)
		}
		if a.Round == RoundReview {
			b.review = true
		} else {
			b.published++
		}
	}
	for _, idx := range order {
		b := bumps[idx]
		if err := repository.ExecExpectOne(ctx, e, bumpRowQuery, taskID, idx, b.published, b.review); err != nil {
			return fmt.Errorf("update row %d counters: %w", idx, repository.MapError(err, ErrRowNotFound, ErrDuplicate))
		}
	}
	return nil
}

// stamp opens a new distribution period for the task.
func stamp(ctx context.Context, e repository.Executor, taskID uuid.UUID, now time.Time) error {
	if err := repository.ExecExpectOne(ctx, e, stampQuery, taskID, now); err != nil {
		return repository.MapError(err, tasks.ErrNotFound, tasks.ErrDuplicate)
	}
	return nil
}

// reviewsOnly keeps the rows waiting on a reviewer.
func reviewsOnly(rows []Row) []Row {
	return slices.DeleteFunc(rows, func(r Row) bool {
		return !r.NeedReview || r.SentToReview
	})
}

package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

// Reviewer is a worker designated to settle a task's disputed rows.
type Reviewer struct {
	TaskID    uuid.UUID `json:"task_id"`
	WorkerID  string    `json:"worker_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewerCommand names the worker to designate.
type ReviewerCommand struct {
	WorkerID string `json:"worker_id"`
}

const (
	reviewersQuery = `
		SELECT task_id, worker_id, created_at
		FROM task_reviewers
		WHERE task_id = $1
		ORDER BY worker_id`

	addReviewerQuery = `
		INSERT INTO task_reviewers(task_id, worker_id)
		VALUES ($1, $2)
		ON CONFLICT (task_id, worker_id) DO NOTHING
		RETURNING task_id, worker_id, created_at`

	removeReviewerQuery = `DELETE FROM task_reviewers WHERE task_id = $1 AND worker_id = $2`
)

func scanReviewer(s repository.Scanner) (Reviewer, error) {
	var rv Reviewer
	err := s.Scan(&rv.TaskID, &rv.WorkerID, &rv.CreatedAt)
	return rv, err
}

// ReviewerIDs lists the workers designated to review the task, in id order.
func ReviewerIDs(ctx context.Context, q repository.Querier, taskID uuid.UUID) ([]string, error) {
	reviewers, err := repository.QueryMany(ctx, q, reviewersQuery, []any{taskID}, scanReviewer)
	if err != nil {
		return nil, fmt.Errorf("query reviewers: %w", err)
	}
	ids := make([]string, len(reviewers))
	for i, rv := range reviewers {
		ids[i] = rv.WorkerID
	}
	return ids, nil
}

func (r *repo) managed(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	t, err := r.Find(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(t.PublisherID) {
		return identity.ErrForbidden
	}
	return nil
}

func (r *repo) Reviewers(ctx context.Context, actor identity.Actor, id uuid.UUID) ([]Reviewer, error) {
	if err := r.managed(ctx, actor, id); err != nil {
		return nil, err
	}
	reviewers, err := repository.QueryMany(ctx, r.db, reviewersQuery, []any{id}, scanReviewer)
	if err != nil {
		return nil, fmt.Errorf("query reviewers: %w", err)
	}
	return reviewers, nil
}

func (r *repo) AddReviewer(ctx context.Context, actor identity.Actor, id uuid.UUID, workerID string) (*Reviewer, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, ErrInvalidReviewer
	}
	if err := r.managed(ctx, actor, id); err != nil {
		return nil, err
	}

	rv, err := repository.QueryOne(ctx, r.db, addReviewerQuery, []any{id, workerID}, scanReviewer)
	if err != nil {
		return nil, repository.MapError(err, ErrReviewerExists, ErrReviewerExists)
	}

	r.logger.Info("reviewer added", "task_id", id, "worker_id", workerID, "by", actor.ID)
	return &rv, nil
}

func (r *repo) RemoveReviewer(ctx context.Context, actor identity.Actor, id uuid.UUID, workerID string) error {
	if err := r.managed(ctx, actor, id); err != nil {
		return err
	}

	if err := repository.ExecExpectOne(ctx, r.db, removeReviewerQuery, id, workerID); err != nil {
		return repository.MapError(err, ErrReviewerNotFound, ErrReviewerExists)
	}

	r.logger.Info("reviewer removed", "task_id", id, "worker_id", workerID, "by", actor.ID)
	return nil
}

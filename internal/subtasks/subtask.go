// Package subtasks implements the subtask lifecycle: claiming a row range,
// submitting it for review, and completing the review with a point credit.
// Status only moves forward: OPEN, IN_PROGRESS, PENDING_REVIEW, COMPLETED.
package subtasks

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/datasets"
)

// Status is the lifecycle state of a subtask.
type Status string

const (
	StatusOpen          Status = "OPEN"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusCompleted     Status = "COMPLETED"
)

// Subtask is one worker's row range within a task.
type Subtask struct {
	ID          uuid.UUID  `json:"id"`
	TaskID      uuid.UUID  `json:"task_id"`
	WorkerID    *string    `json:"worker_id"`
	Status      Status     `json:"status"`
	StartRow    int        `json:"start_row"`
	EndRow      int        `json:"end_row"`
	Points      int        `json:"points"`
	ClaimedAt   *time.Time `json:"claimed_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Rows is the number of dataset rows the subtask covers.
func (s Subtask) Rows() int {
	return s.EndRow - s.StartRow
}

// Contains reports whether rowIndex falls inside the subtask's range.
func (s Subtask) Contains(rowIndex int) bool {
	return rowIndex >= s.StartRow && rowIndex < s.EndRow
}

// ClaimedBy reports whether workerID holds the subtask.
func (s Subtask) ClaimedBy(workerID string) bool {
	return s.WorkerID != nil && *s.WorkerID == workerID
}

// ClaimCommand carries the worker's declared expertise.
type ClaimCommand struct {
	Expertise []string `json:"expertise"`
}

// ReviewCommand completes a review. Points overrides the subtask's point
// value. Rows still PENDING at completion are promoted to APPROVED.
type ReviewCommand struct {
	Points *int `json:"points,omitempty"`
}

// Review is the outcome of completing a review. Credited is false when the
// subtask was already completed and no points were credited by this call.
type Review struct {
	Subtask  Subtask `json:"subtask"`
	Points   int     `json:"points"`
	Credited bool    `json:"credited"`
	Promoted int64   `json:"promoted"`
}

// Row is one dataset row of a subtask addressed by its task-wide index.
type Row struct {
	Index int          `json:"index"`
	Data  datasets.Row `json:"data"`
}

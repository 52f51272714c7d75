// Package annotations stores the per-row selection sets of a subtask. Rows are
// created lazily on first visit with a snapshot of the dataset row, and every
// save replaces the row's selections as a whole.
package annotations

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/selection"
)

// Status is the review state of one row.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Valid reports whether s is a known row status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Round identifies who is editing a row: the claimant or the reviewer.
type Round int

const (
	RoundAnnotate Round = 0
	RoundReview   Round = 1
)

// Annotation is the stored selection set of one dataset row.
type Annotation struct {
	ID         uuid.UUID             `json:"id"`
	SubtaskID  uuid.UUID             `json:"subtask_id"`
	RowIndex   int                   `json:"row_index"`
	RowData    datasets.Row          `json:"row_data"`
	Status     Status                `json:"status"`
	Selections []selection.Selection `json:"selections"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// SaveCommand replaces a row's selections.
type SaveCommand struct {
	Selections []selection.Selection `json:"selections"`
}

// StatusCommand sets a row's review status, optionally replacing its
// selections in the same write.
type StatusCommand struct {
	Status     Status                 `json:"status"`
	Selections *[]selection.Selection `json:"selections,omitempty"`
}

// Package distribution hands dataset rows out to workers in periodic batches,
// decides each row's label by an ability-weighted vote once enough results are
// in, routes disputed rows to a second-round reviewer, and rolls results back.
package distribution

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/internal/tasks"
)

// Round distinguishes labeling results from review results.
type Round int

const (
	RoundLabel  Round = 0
	RoundReview Round = 1
)

// Result is one worker's assignment of one row, and the labels they gave it.
type Result struct {
	ID         uuid.UUID             `json:"id"`
	TaskID     uuid.UUID             `json:"task_id"`
	RowIndex   int                   `json:"row_index"`
	WorkerID   string                `json:"worker_id"`
	Round      Round                 `json:"round"`
	Selections []selection.Selection `json:"selections"`
	Finished   bool                  `json:"is_finished"`
	Correct    *bool                 `json:"is_correct"`
	Category   *string               `json:"category"`
	AssignedAt time.Time             `json:"assigned_at"`
	FinishedAt *time.Time            `json:"finished_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Row holds the distribution counters of one dataset row.
type Row struct {
	Index        int                `json:"row_index"`
	Required     int                `json:"required_count"`
	Published    int                `json:"published_count"`
	Completed    int                `json:"completed_count"`
	Requirement  map[string]float64 `json:"requirement_vector"`
	Finished     bool               `json:"is_finished"`
	NeedReview   bool               `json:"need_to_review"`
	SentToReview bool               `json:"sent_to_review"`
}

// SaveCommand carries a worker's labels for an assigned row.
type SaveCommand struct {
	Selections []selection.Selection `json:"selections"`
}

// UndoCommand selects the results to roll back. Date (YYYY-MM-DD) rolls back a
// worker's day; RowIndex rolls back a single result in Round.
type UndoCommand struct {
	WorkerID string `json:"worker_id"`
	Date     string `json:"date,omitempty"`
	RowIndex *int   `json:"row_index,omitempty"`
	Round    Round  `json:"round,omitempty"`
}

// UndoReport counts what a rollback did and what it left alone.
type UndoReport struct {
	Undone              int `json:"undone"`
	SkippedSentToReview int `json:"skipped_sent_to_review"`
	SkippedNotIncorrect int `json:"skipped_not_incorrect"`
}

// ReleaseReport summarizes one release pass over a task.
type ReleaseReport struct {
	TaskID      uuid.UUID    `json:"task_id"`
	Released    int          `json:"released"`
	Reviews     int          `json:"reviews"`
	Skipped     bool         `json:"skipped"`
	Assignments []Assignment `json:"assignments,omitempty"`
}

// Summary aggregates a scheduled pass over every releasable task.
type Summary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Released  int `json:"released"`
}

// RowFinished announces a settled row.
type RowFinished struct {
	TaskID   uuid.UUID `json:"task_id"`
	RowIndex int       `json:"row_index"`
	Label    string    `json:"label"`
	Category string    `json:"category,omitempty"`
	Share    float64   `json:"share"`
	Reviewed bool      `json:"reviewed"`
}

// Config holds the distribution policy.
type Config struct {
	Location    *time.Location
	MinuteCycle bool
	Threshold   float64
	Concurrency int
}

func (c Config) normalize() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		c.Threshold = DefaultThreshold
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	return c
}

// DefaultThreshold is the vote share a label needs to settle a row.
const DefaultThreshold = 0.6

// Due reports whether task should receive a batch at now: it is in progress,
// has a positive cycle, and either has never been released or at least
// PublishCycle whole days (minutes when minuteCycle is set) have passed since
// the last release. Days are calendar days in loc.
func Due(t *tasks.Task, now time.Time, loc *time.Location, minuteCycle bool) bool {
	if t.Status != tasks.StatusInProgress || t.PublishCycle <= 0 {
		return false
	}
	if t.LastProcessedAt == nil {
		return true
	}

	last := *t.LastProcessedAt
	if minuteCycle {
		return now.Sub(last) >= time.Duration(t.PublishCycle)*time.Minute
	}
	return calendarDays(last, now, loc) >= t.PublishCycle
}

func calendarDays(from, to time.Time, loc *time.Location) int {
	midnight := func(t time.Time) time.Time {
		y, m, d := t.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return int(midnight(to).Sub(midnight(from)).Hours() / 24)
}

// DayBounds returns the [start, end) instants of the calendar date in loc.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day, day.AddDate(0, 0, 1), nil
}

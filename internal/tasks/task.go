// Package tasks implements the labeling task aggregate: registration of a
// taxonomy and dataset, the split into subtasks, approval, and publication.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Status is a task's lifecycle state. It only moves forward.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Default split and distribution parameters.
const (
	DefaultRowsPerSubtask = 20
	DefaultMaxWorkers     = 1
	DefaultRequiredCount  = 1
)

// Task is a labeling job over one dataset and one taxonomy.
type Task struct {
	ID              uuid.UUID  `json:"id"`
	PublisherID     string     `json:"publisher_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          Status     `json:"status"`
	Approved        bool       `json:"approved"`
	MaxWorkers      int        `json:"max_workers"`
	WorkerCount     int        `json:"worker_count"`
	RowCount        int        `json:"row_count"`
	RowsPerSubtask  int        `json:"rows_per_subtask"`
	RequiredCount   int        `json:"required_count"`
	PublishCycle    int        `json:"publish_cycle"`
	PublishLimit    int        `json:"publish_limit"`
	TaxonomyKey     string     `json:"taxonomy_key"`
	DatasetKey      string     `json:"dataset_key"`
	LastProcessedAt *time.Time `json:"last_processed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateCommand carries an uploaded taxonomy and dataset with the split settings.
// Zero values fall back to the defaults; PointsPerSubtask zero credits one
// point per row.
type CreateCommand struct {
	PublisherID      string
	Title            string
	Description      string
	MaxWorkers       int
	RowsPerSubtask   int
	PointsPerSubtask int
	RequiredCount    int
	PublishCycle     int
	PublishLimit     int
	Taxonomy         File
	Dataset          File
}

// File is one uploaded blob.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Span is one subtask's half-open row range and point value.
type Span struct {
	Start  int `json:"start_row"`
	End    int `json:"end_row"`
	Points int `json:"points"`
}

// Split divides rows into consecutive spans of size rows, the last one
// possibly shorter. points zero credits one point per row.
func Split(rows, size, points int) []Span {
	if rows <= 0 || size <= 0 {
		return nil
	}

	spans := make([]Span, 0, (rows+size-1)/size)
	for start := 0; start < rows; start += size {
		end := min(start+size, rows)
		p := points
		if p <= 0 {
			p = end - start
		}
		spans = append(spans, Span{Start: start, End: end, Points: p})
	}
	return spans
}

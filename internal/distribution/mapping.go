package distribution

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "annotation_results", "ar").
	Project("id", "ID").
	Project("task_id", "TaskID").
	Project("row_index", "RowIndex").
	Project("worker_id", "WorkerID").
	Project("round", "Round").
	Project("selections", "Selections").
	Project("is_finished", "Finished").
	Project("is_correct", "Correct").
	Project("category", "Category").
	Project("assigned_at", "AssignedAt").
	Project("finished_at", "FinishedAt").
	Project("updated_at", "UpdatedAt")

const returning = `id, task_id, row_index, worker_id, round, selections, is_finished,
	is_correct, category, assigned_at, finished_at, updated_at`

var defaultSort = query.SortField{Field: "RowIndex"}

// Filters contains optional filtering criteria for result queries.
type Filters struct {
	WorkerID *string `json:"worker_id,omitempty"`
	Round    *int    `json:"round,omitempty"`
	Finished *bool   `json:"is_finished,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("WorkerID", f.WorkerID).
		WhereEquals("Round", f.Round).
		WhereEquals("Finished", f.Finished)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if w := values.Get("worker_id"); w != "" {
		f.WorkerID = &w
	}

	if r := values.Get("round"); r != "" {
		if v, err := strconv.Atoi(r); err == nil {
			f.Round = &v
		}
	}

	if fin := values.Get("is_finished"); fin != "" {
		if v, err := strconv.ParseBool(fin); err == nil {
			f.Finished = &v
		}
	}

	return f
}

func scanResult(s repository.Scanner) (Result, error) {
	var r Result
	var sels []byte
	err := s.Scan(
		&r.ID,
		&r.TaskID,
		&r.RowIndex,
		&r.WorkerID,
		&r.Round,
		&sels,
		&r.Finished,
		&r.Correct,
		&r.Category,
		&r.AssignedAt,
		&r.FinishedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}
	err = json.Unmarshal(sels, &r.Selections)
	return r, err
}

const rowColumns = `row_index, required_count, published_count, completed_count,
	requirement_vector, is_finished, need_to_review, sent_to_review`

func scanRow(s repository.Scanner) (Row, error) {
	var r Row
	var req []byte
	err := s.Scan(
		&r.Index,
		&r.Required,
		&r.Published,
		&r.Completed,
		&req,
		&r.Finished,
		&r.NeedReview,
		&r.SentToReview,
	)
	if err != nil {
		return r, err
	}
	err = json.Unmarshal(req, &r.Requirement)
	return r, err
}

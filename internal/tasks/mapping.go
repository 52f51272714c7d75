package tasks

import (
	"net/url"
	"strconv"

	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "tasks", "t").
	Project("id", "ID").
	Project("publisher_id", "PublisherID").
	Project("title", "Title").
	Project("description", "Description").
	Project("status", "Status").
	Project("approved", "Approved").
	Project("max_workers", "MaxWorkers").
	Project("worker_count", "WorkerCount").
	Project("row_count", "RowCount").
	Project("rows_per_subtask", "RowsPerSubtask").
	Project("required_count", "RequiredCount").
	Project("publish_cycle", "PublishCycle").
	Project("publish_limit", "PublishLimit").
	Project("taxonomy_key", "TaxonomyKey").
	Project("dataset_key", "DatasetKey").
	Project("last_processed_at", "LastProcessedAt").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

// returning lists the task columns in scan order for RETURNING clauses.
const returning = `id, publisher_id, title, description, status, approved, max_workers,
	worker_count, row_count, rows_per_subtask, required_count, publish_cycle, publish_limit,
	taxonomy_key, dataset_key, last_processed_at, created_at, updated_at`

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for task queries.
// Nil fields are ignored. Title uses case-insensitive contains matching.
type Filters struct {
	Status      *string `json:"status,omitempty"`
	Approved    *bool   `json:"approved,omitempty"`
	PublisherID *string `json:"publisher_id,omitempty"`
	Title       *string `json:"title,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("Approved", f.Approved).
		WhereEquals("PublisherID", f.PublisherID).
		WhereContains("Title", f.Title)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}

	if a := values.Get("approved"); a != "" {
		if v, err := strconv.ParseBool(a); err == nil {
			f.Approved = &v
		}
	}

	if p := values.Get("publisher_id"); p != "" {
		f.PublisherID = &p
	}

	if t := values.Get("title"); t != "" {
		f.Title = &t
	}

	return f
}

func scanTask(s repository.Scanner) (Task, error) {
	var t Task
	err := s.Scan(
		&t.ID,
		&t.PublisherID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Approved,
		&t.MaxWorkers,
		&t.WorkerCount,
		&t.RowCount,
		&t.RowsPerSubtask,
		&t.RequiredCount,
		&t.PublishCycle,
		&t.PublishLimit,
		&t.TaxonomyKey,
		&t.DatasetKey,
		&t.LastProcessedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

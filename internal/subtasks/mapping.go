package subtasks

import (
	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "subtasks", "s").
	Project("id", "ID").
	Project("task_id", "TaskID").
	Project("worker_id", "WorkerID").
	Project("status", "Status").
	Project("start_row", "StartRow").
	Project("end_row", "EndRow").
	Project("points", "Points").
	Project("claimed_at", "ClaimedAt").
	Project("submitted_at", "SubmittedAt").
	Project("completed_at", "CompletedAt").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

const returning = `id, task_id, worker_id, status, start_row, end_row, points,
	claimed_at, submitted_at, completed_at, created_at, updated_at`

var defaultSort = query.SortField{Field: "StartRow"}

// Filters contains optional filtering criteria for subtask queries.
type Filters struct {
	Status   *string `json:"status,omitempty"`
	WorkerID *string `json:"worker_id,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("WorkerID", f.WorkerID)
}

func scanSubtask(s repository.Scanner) (Subtask, error) {
	var st Subtask
	err := s.Scan(
		&st.ID,
		&st.TaskID,
		&st.WorkerID,
		&st.Status,
		&st.StartRow,
		&st.EndRow,
		&st.Points,
		&st.ClaimedAt,
		&st.SubmittedAt,
		&st.CompletedAt,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	return st, err
}

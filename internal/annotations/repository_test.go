package annotations_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/annotations"
	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/internal/taxonomy"
	"github.com/JaimeStill/labelhub/pkg/storage/storagetest"
)

var subtaskColumns = []string{
	"id", "task_id", "worker_id", "status", "start_row", "end_row", "points",
	"claimed_at", "submitted_at", "completed_at", "created_at", "updated_at",
}

var annotationColumns = []string{"id", "subtask_id", "row_index", "row_data", "status", "created_at", "updated_at"}

const (
	datasetKey   = "tasks/t/dataset/rows.json"
	taxonomyJSON = `[{"name":"Topic","categories":[
		{"levelLabel":"L1","name":"A","children":[{"levelLabel":"L2","name":"A1"},{"levelLabel":"L2","name":"A2"}]},
		{"levelLabel":"L1","name":"B"}
	]}]`
)

var (
	subtaskGet    = `FROM public\.subtasks s WHERE s\.id = \$1$`
	subtaskLock   = `FROM public\.subtasks s WHERE s\.id = \$1 FOR UPDATE`
	scopeQuery    = regexp.QuoteMeta("SELECT publisher_id, dataset_key FROM tasks WHERE id = $1")
	findQuery     = `FROM public\.row_annotations ra WHERE ra\.subtask_id = \$1 AND ra\.row_index = \$2 LIMIT 1`
	rowSelections = `annotation_selections\s+WHERE annotation_id = \$1`
	worker        = identity.Actor{ID: "w1", Role: identity.RoleWorker}
	owner         = identity.Actor{ID: "pub", Role: identity.RolePublisher}
)

type fixture struct {
	subtaskID    uuid.UUID
	taskID       uuid.UUID
	annotationID uuid.UUID
	mock         sqlmock.Sqlmock
	sys          annotations.System
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tax, err := taxonomy.Load("topics.json", strings.NewReader(taxonomyJSON))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	engines := selection.SourceFunc(func(context.Context, uuid.UUID) (*selection.Engine, error) {
		return selection.New(tax, selection.Config{}), nil
	})

	store := storagetest.New()
	store.Put(datasetKey, []byte(`[{"text":"a"},{"text":"b"}]`))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		subtaskID:    uuid.New(),
		taskID:       uuid.New(),
		annotationID: uuid.New(),
		mock:         mock,
		sys:          annotations.New(db, engines, datasets.NewProvider(store, 0, logger), nil, logger),
	}
}

func (f *fixture) subtask(status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(subtaskColumns).AddRow(
		f.subtaskID.String(), f.taskID.String(), "w1", status, 0, 2, 2,
		now, nil, nil, now, now,
	)
}

func (f *fixture) annotation(status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(annotationColumns).AddRow(
		f.annotationID.String(), f.subtaskID.String(), 1, []byte(`{"text":"b"}`), status, now, now,
	)
}

// expectOpen queues the reads of an already opened row.
func (f *fixture) expectOpen(status string) {
	f.mock.ExpectQuery(subtaskGet).WithArgs(f.subtaskID.String()).WillReturnRows(f.subtask(status))
	f.mock.ExpectQuery(scopeQuery).WithArgs(f.taskID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"publisher_id", "dataset_key"}).AddRow("pub", datasetKey))
	f.mock.ExpectQuery(findQuery).WithArgs(f.subtaskID.String(), 1).WillReturnRows(f.annotation("PENDING"))
	f.mock.ExpectQuery(rowSelections).WithArgs(f.annotationID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"annotation_id", "dimension_name", "path_ids", "path_names"}).
			AddRow(f.annotationID.String(), "Topic", []byte(`["L1:B"]`), []byte(`["B"]`)))
}

func TestOpenCreatesRowLazily(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(subtaskGet).WillReturnRows(f.subtask("IN_PROGRESS"))
	f.mock.ExpectQuery(scopeQuery).
		WillReturnRows(sqlmock.NewRows([]string{"publisher_id", "dataset_key"}).AddRow("pub", datasetKey))
	f.mock.ExpectQuery(findQuery).WillReturnRows(sqlmock.NewRows(annotationColumns))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO row_annotations(subtask_id, row_index, row_data)")).
		WithArgs(f.subtaskID.String(), 1, []byte(`{"text":"b"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(findQuery).WillReturnRows(f.annotation("PENDING"))
	f.mock.ExpectQuery(rowSelections).WillReturnRows(sqlmock.NewRows([]string{"annotation_id", "dimension_name", "path_ids", "path_names"}))

	a, err := f.sys.Open(context.Background(), worker, f.subtaskID, 1)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if a.Status != annotations.StatusPending || a.RowData["text"] != "b" || len(a.Selections) != 0 {
		t.Errorf("Open() = %+v", a)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOpenRejectsRowOutsideRange(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(subtaskGet).WillReturnRows(f.subtask("IN_PROGRESS"))

	if _, err := f.sys.Open(context.Background(), worker, f.subtaskID, 2); !errors.Is(err, annotations.ErrRowOutOfRange) {
		t.Fatalf("Open() error = %v, want %v", err, annotations.ErrRowOutOfRange)
	}
}

func TestSaveReplacesSelectionsAtomically(t *testing.T) {
	f := newFixture(t)
	f.expectOpen("IN_PROGRESS")

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(subtaskLock).WillReturnRows(f.subtask("IN_PROGRESS"))
	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM annotation_selections WHERE annotation_id = $1")).
		WithArgs(f.annotationID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO annotation_selections(annotation_id, position, dimension_name, path_ids, path_names) VALUES ($1, $2, $3, $4, $5)")).
		WithArgs(f.annotationID.String(), 0, "Topic", []byte(`["L1:A","L1:A\u003eL2:A1"]`), []byte(`["A","A1"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE row_annotations SET updated_at = NOW() WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	posted := []selection.Selection{
		{DimensionName: "Topic", PathIDs: []string{"L1:A"}},
		{DimensionName: "Topic", PathIDs: []string{"L1:A", "L1:A>L2:A1"}},
		{DimensionName: "Topic", PathIDs: []string{"L1:A", "L1:A>L2:A1"}},
		{DimensionName: "Topic", PathIDs: []string{}},
	}

	a, err := f.sys.Save(context.Background(), worker, f.subtaskID, 1, annotations.SaveCommand{Selections: posted})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	want := []selection.Selection{
		{DimensionName: "Topic", PathIDs: []string{"L1:A", "L1:A>L2:A1"}, PathNames: []string{"A", "A1"}},
	}
	if diff := cmp.Diff(want, a.Selections); diff != "" {
		t.Errorf("selections mismatch (-want +got):\n%s", diff)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.expectOpen("IN_PROGRESS")
	boom := errors.New("disk full")

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(subtaskLock).WillReturnRows(f.subtask("IN_PROGRESS"))
	f.mock.ExpectExec("DELETE FROM annotation_selections").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO annotation_selections").WillReturnError(boom)
	f.mock.ExpectRollback()

	posted := []selection.Selection{{DimensionName: "Topic", PathIDs: []string{"L1:A"}}}
	if _, err := f.sys.Save(context.Background(), worker, f.subtaskID, 1, annotations.SaveCommand{Selections: posted}); !errors.Is(err, boom) {
		t.Fatalf("Save() error = %v, want %v", err, boom)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveRules(t *testing.T) {
	tests := []struct {
		name   string
		status string
		actor  identity.Actor
		want   error
	}{
		{"owner cannot edit while annotating", "IN_PROGRESS", owner, identity.ErrForbidden},
		{"claimant cannot edit under review", "PENDING_REVIEW", worker, identity.ErrForbidden},
		{"completed subtask", "COMPLETED", owner, annotations.ErrNotEditable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.expectOpen(tt.status)

			_, err := f.sys.Save(context.Background(), tt.actor, f.subtaskID, 1, annotations.SaveCommand{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("Save() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSaveRejectsInvalidPath(t *testing.T) {
	f := newFixture(t)
	f.expectOpen("IN_PROGRESS")

	posted := []selection.Selection{{DimensionName: "Topic", PathIDs: []string{"L1:B", "L1:A>L2:A1"}}}
	_, err := f.sys.Save(context.Background(), worker, f.subtaskID, 1, annotations.SaveCommand{Selections: posted})
	if !errors.Is(err, selection.ErrInvalidPath) {
		t.Fatalf("Save() error = %v, want %v", err, selection.ErrInvalidPath)
	}
}

func TestSetStatus(t *testing.T) {
	t.Run("reviewer approves row", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen("PENDING_REVIEW")

		f.mock.ExpectBegin()
		f.mock.ExpectQuery(subtaskLock).WillReturnRows(f.subtask("PENDING_REVIEW"))
		f.mock.ExpectExec(regexp.QuoteMeta("UPDATE row_annotations SET status = $2")).
			WithArgs(f.annotationID.String(), "APPROVED").
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectCommit()

		a, err := f.sys.SetStatus(context.Background(), owner, f.subtaskID, 1, annotations.StatusCommand{Status: annotations.StatusApproved})
		if err != nil {
			t.Fatalf("SetStatus() error = %v", err)
		}
		if a.Status != annotations.StatusApproved {
			t.Errorf("status = %s, want APPROVED", a.Status)
		}
		if err := f.mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("expectations: %v", err)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.sys.SetStatus(context.Background(), owner, f.subtaskID, 1, annotations.StatusCommand{Status: "MAYBE"})
		if !errors.Is(err, annotations.ErrInvalidStatus) {
			t.Fatalf("SetStatus() error = %v, want %v", err, annotations.ErrInvalidStatus)
		}
	})

	t.Run("not under review", func(t *testing.T) {
		f := newFixture(t)
		f.expectOpen("IN_PROGRESS")

		_, err := f.sys.SetStatus(context.Background(), owner, f.subtaskID, 1, annotations.StatusCommand{Status: annotations.StatusApproved})
		if !errors.Is(err, identity.ErrForbidden) {
			t.Fatalf("SetStatus() error = %v, want %v", err, identity.ErrForbidden)
		}
	})
}

package abilities_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/abilities"
)

var vectorColumns = []string{
	"worker_id", "task_id", "ability_vector", "vector_length", "alpha_values",
	"correct_counts", "total_counts", "avg_score", "min_score", "max_score",
	"total_annotations", "created_at", "updated_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestUpsertOverwritesCounters(t *testing.T) {
	db, mock := newMock(t)
	taskID := uuid.New()

	v, _ := abilities.Initialize("w1", taskID, []string{"Art", "Science"}, []string{"Science"})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO worker_abilities(")).
		WithArgs(
			"w1",
			taskID.String(),
			[]byte(`{"Art":0.5,"Science":0.90909}`),
			2,
			[]byte(`{"Art":1,"Science":10}`),
			[]byte(`{"Art":0,"Science":0}`),
			[]byte(`{"Art":0,"Science":0}`),
			v.AvgScore,
			v.MinScore,
			v.MaxScore,
			0,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := abilities.Upsert(context.Background(), db, v); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertWrapsError(t *testing.T) {
	db, mock := newMock(t)
	boom := errors.New("connection reset")

	mock.ExpectExec("INSERT INTO worker_abilities").WillReturnError(boom)

	v, _ := abilities.Initialize("w1", uuid.New(), []string{"Art"}, nil)
	if err := abilities.Upsert(context.Background(), db, v); !errors.Is(err, boom) {
		t.Fatalf("Upsert() error = %v, want %v", err, boom)
	}
}

func TestLock(t *testing.T) {
	db, mock := newMock(t)
	taskID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM public\.worker_abilities wa WHERE wa\.task_id = \$1 AND wa\.worker_id = \$2 LIMIT 1 FOR UPDATE`).
		WithArgs(taskID.String(), "w1").
		WillReturnRows(sqlmock.NewRows(vectorColumns).AddRow(
			"w1", taskID.String(), []byte(`{"Art":0.5}`), 1, []byte(`{"Art":1}`),
			[]byte(`{"Art":0}`), []byte(`{"Art":0}`), 0.5, 0.5, 0.5, 0, now, now,
		))

	v, err := abilities.Lock(context.Background(), db, taskID, "w1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if v.TaskID != taskID || v.Scores["Art"] != 0.5 || v.Alpha["Art"] != 1 {
		t.Errorf("vector = %+v", v)
	}
}

func TestLockNotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("FROM public.worker_abilities").WillReturnError(sql.ErrNoRows)

	if _, err := abilities.Lock(context.Background(), db, uuid.New(), "w1"); !errors.Is(err, abilities.ErrNotFound) {
		t.Fatalf("Lock() error = %v, want ErrNotFound", err)
	}
}

func TestForTask(t *testing.T) {
	db, mock := newMock(t)
	taskID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows(vectorColumns)
	for _, w := range []string{"a", "b"} {
		rows.AddRow(w, taskID.String(), []byte(`{}`), 0, []byte(`{}`), []byte(`{}`), []byte(`{}`), 0.0, 0.0, 0.0, 0, now, now)
	}
	mock.ExpectQuery(`ORDER BY wa\.worker_id ASC`).WithArgs(taskID.String()).WillReturnRows(rows)

	vectors, err := abilities.ForTask(context.Background(), db, taskID)
	if err != nil {
		t.Fatalf("ForTask() error = %v", err)
	}
	if len(vectors) != 2 || vectors[0].WorkerID != "a" {
		t.Errorf("vectors = %+v", vectors)
	}
}

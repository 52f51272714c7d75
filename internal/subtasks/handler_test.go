package subtasks_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/subtasks"
	"github.com/JaimeStill/labelhub/pkg/pagination"
	"github.com/JaimeStill/labelhub/pkg/routes"
)

type mockSystem struct {
	findFn     func(ctx context.Context, id uuid.UUID) (*subtasks.Subtask, error)
	listFn     func(ctx context.Context, taskID uuid.UUID, page pagination.PageRequest, filters subtasks.Filters) (*pagination.PageResult[subtasks.Subtask], error)
	rowsFn     func(ctx context.Context, id uuid.UUID) ([]subtasks.Row, error)
	claimFn    func(ctx context.Context, actor identity.Actor, id uuid.UUID, cmd subtasks.ClaimCommand) (*subtasks.Subtask, error)
	submitFn   func(ctx context.Context, actor identity.Actor, id uuid.UUID) (*subtasks.Subtask, error)
	completeFn func(ctx context.Context, actor identity.Actor, id uuid.UUID, cmd subtasks.ReviewCommand) (*subtasks.Review, error)
	rejectFn   func(ctx context.Context, actor identity.Actor, id uuid.UUID) (*subtasks.Subtask, error)
}

func (m *mockSystem) Handler() *subtasks.Handler {
	return subtasks.NewHandler(m, slog.New(slog.NewTextHandler(io.Discard, nil)), pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
}

func (m *mockSystem) Find(ctx context.Context, id uuid.UUID) (*subtasks.Subtask, error) {
	return m.findFn(ctx, id)
}

func (m *mockSystem) ListByTask(ctx context.Context, taskID uuid.UUID, page pagination.PageRequest, filters subtasks.Filters) (*pagination.PageResult[subtasks.Subtask], error) {
	return m.listFn(ctx, taskID, page, filters)
}

func (m *mockSystem) Rows(ctx context.Context, id uuid.UUID) ([]subtasks.Row, error) {
	return m.rowsFn(ctx, id)
}

func (m *mockSystem) Claim(ctx context.Context, actor identity.Actor, id uuid.UUID, cmd subtasks.ClaimCommand) (*subtasks.Subtask, error) {
	return m.claimFn(ctx, actor, id, cmd)
}

func (m *mockSystem) Submit(ctx context.Context, actor identity.Actor, id uuid.UUID) (*subtasks.Subtask, error) {
	return m.submitFn(ctx, actor, id)
}

func (m *mockSystem) CompleteReview(ctx context.Context, actor identity.Actor, id uuid.UUID, cmd subtasks.ReviewCommand) (*subtasks.Review, error) {
	return m.completeFn(ctx, actor, id, cmd)
}

func (m *mockSystem) RejectReview(ctx context.Context, actor identity.Actor, id uuid.UUID) (*subtasks.Subtask, error) {
	return m.rejectFn(ctx, actor, id)
}

func setupMux(sys *mockSystem) *http.ServeMux {
	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler().Routes())
	return mux
}

func post(mux *http.ServeMux, path, body string, actor *identity.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	if actor != nil {
		req = req.WithContext(identity.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandlerClaim(t *testing.T) {
	id := uuid.New()
	var got subtasks.ClaimCommand

	sys := &mockSystem{
		claimFn: func(_ context.Context, actor identity.Actor, _ uuid.UUID, cmd subtasks.ClaimCommand) (*subtasks.Subtask, error) {
			got = cmd
			if actor.ID == "late" {
				return nil, fmt.Errorf("%w: 2 of 2 workers", subtasks.ErrQuotaExceeded)
			}
			return &subtasks.Subtask{ID: id, WorkerID: &actor.ID, Status: subtasks.StatusInProgress}, nil
		},
	}
	mux := setupMux(sys)
	path := "/subtasks/" + id.String() + "/claim"

	tests := []struct {
		name  string
		body  string
		actor *identity.Actor
		want  int
	}{
		{"empty body", "", &worker, http.StatusOK},
		{"with expertise", `{"expertise":["Art","Science"]}`, &worker, http.StatusOK},
		{"too much expertise", `{"expertise":["a","b","c","d"]}`, &worker, http.StatusBadRequest},
		{"unknown field", `{"skills":["a"]}`, &worker, http.StatusBadRequest},
		{"quota reason", "", &identity.Actor{ID: "late", Role: identity.RoleWorker}, http.StatusConflict},
		{"no actor", "", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(mux, path, tt.body, tt.actor)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	post(mux, path, `{"expertise":["Art"]}`, &worker)
	if len(got.Expertise) != 1 || got.Expertise[0] != "Art" {
		t.Errorf("expertise = %v", got.Expertise)
	}

	rec := post(mux, path, "", &identity.Actor{ID: "late", Role: identity.RoleWorker})
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body["error"], "quota") {
		t.Errorf("error = %q, want quota reason", body["error"])
	}
}

func TestHandlerCompleteReview(t *testing.T) {
	id := uuid.New()
	var gotPoints *int
	sys := &mockSystem{
		completeFn: func(_ context.Context, actor identity.Actor, _ uuid.UUID, cmd subtasks.ReviewCommand) (*subtasks.Review, error) {
			if actor.Role == identity.RoleWorker {
				return nil, identity.ErrForbidden
			}
			gotPoints = cmd.Points
			return &subtasks.Review{Subtask: subtasks.Subtask{ID: id, Status: subtasks.StatusCompleted}, Points: 5, Credited: true, Promoted: 1}, nil
		},
	}
	mux := setupMux(sys)
	path := "/subtasks/" + id.String() + "/review/complete"

	if rec := post(mux, path, "", &worker); rec.Code != http.StatusForbidden {
		t.Fatalf("worker status = %d, want 403", rec.Code)
	}
	if rec := post(mux, path, `{"force":true}`, &owner); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d, want 400", rec.Code)
	}

	rec := post(mux, path, `{"points":5}`, &owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotPoints == nil || *gotPoints != 5 {
		t.Errorf("points = %v, want 5", gotPoints)
	}
	var review subtasks.Review
	if err := json.NewDecoder(rec.Body).Decode(&review); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !review.Credited || review.Promoted != 1 || review.Subtask.Status != subtasks.StatusCompleted {
		t.Errorf("review = %+v", review)
	}
}

func TestHandlerListByTask(t *testing.T) {
	taskID := uuid.New()
	var gotTask uuid.UUID
	var gotFilters subtasks.Filters

	sys := &mockSystem{
		listFn: func(_ context.Context, id uuid.UUID, page pagination.PageRequest, f subtasks.Filters) (*pagination.PageResult[subtasks.Subtask], error) {
			gotTask, gotFilters = id, f
			result := pagination.NewPageResult([]subtasks.Subtask{}, 0, page.Page, page.PageSize)
			return &result, nil
		},
	}

	rec := httptest.NewRecorder()
	setupMux(sys).ServeHTTP(rec, httptest.NewRequest("GET", "/tasks/"+taskID.String()+"/subtasks?status=OPEN", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotTask != taskID || gotFilters.Status == nil || *gotFilters.Status != "OPEN" {
		t.Errorf("task = %s, filters = %+v", gotTask, gotFilters)
	}
}

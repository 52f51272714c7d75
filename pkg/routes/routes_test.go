package routes_test

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/JaimeStill/labelhub/pkg/routes"
)

func named(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(name))
	}
}

func TestRegisterNestedGroups(t *testing.T) {
	mux := http.NewServeMux()
	routes.Register(mux, routes.Group{
		Prefix: "/subtasks",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{id}", Handler: named("find")},
		},
		Children: []routes.Group{
			{
				Prefix: "/{id}/review",
				Routes: []routes.Route{
					{Method: "POST", Pattern: "/complete", Handler: named("complete")},
				},
			},
		},
	})

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"GET", "/subtasks/abc", "find"},
		{"POST", "/subtasks/abc/review/complete", "complete"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Body.String() != tt.want {
			t.Errorf("%s %s = %q, want %q", tt.method, tt.path, rec.Body.String(), tt.want)
		}
	}
}

func TestPatterns(t *testing.T) {
	got := routes.Patterns(
		routes.Group{
			Prefix: "/distribution",
			Routes: []routes.Route{
				{Method: "POST", Pattern: "/{taskId}/release", Handler: named("release")},
				{Method: "POST", Pattern: "/{taskId}/recheck", Handler: named("recheck")},
			},
		},
		routes.Group{
			Prefix: "/tasks",
			Children: []routes.Group{
				{
					Prefix: "/{taskId}",
					Routes: []routes.Route{{Method: "GET", Pattern: "/export", Handler: named("export")}},
				},
			},
		},
	)

	want := []string{
		"POST /distribution/{taskId}/release",
		"POST /distribution/{taskId}/recheck",
		"GET /tasks/{taskId}/export",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Patterns() = %v, want %v", got, want)
	}
}

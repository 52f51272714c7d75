package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JaimeStill/labelhub/pkg/metrics"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := metrics.New("test")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	handler := m.Middleware()(mux)
	for _, path := range []string{"/tasks/a", "/tasks/b"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	body := scrape(t, m)
	want := `labelhub_http_requests_total{method="GET",route="GET /tasks/{id}",service="test",status="202"} 2`
	if !strings.Contains(body, want) {
		t.Errorf("scrape missing %q\n%s", want, body)
	}
}

func TestDomainCounters(t *testing.T) {
	m := metrics.New("test")

	m.RecordClaim("claimed")
	m.RecordClaim("claimed")
	m.RecordClaim("quota_exceeded")
	m.ObserveRelease(10*time.Millisecond, 3, nil)
	m.ObserveRelease(time.Millisecond, 0, nil)
	m.RecordUndo("day", 0)
	m.RecordUndo("row", 1)

	count := testutil.CollectAndCount(m.Registry(), "labelhub_subtasks_claims_total")
	if count != 2 {
		t.Errorf("claim series = %d, want 2", count)
	}

	body := scrape(t, m)
	for _, want := range []string{
		`labelhub_subtasks_claims_total{outcome="claimed",service="test"} 2`,
		`labelhub_distribution_rows_released_total{service="test"} 3`,
		`labelhub_distribution_undo_total{mode="row",service="test"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
	if strings.Contains(body, `mode="day"`) {
		t.Error("zero undo count should not create a series")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics

	m.RecordClaim("claimed")
	m.RecordConsensus("agreed")
	m.ObserveRelease(time.Second, 1, nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	m.Middleware()(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	b, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// Package metrics exposes Prometheus instrumentation for the labeling service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "labelhub"

// Metrics owns a private registry and the service's collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	claimsTotal       *prometheus.CounterVec
	selectionSaves    *prometheus.CounterVec
	rowsReleased      prometheus.Counter
	releaseDuration   *prometheus.HistogramVec
	consensusTotal    *prometheus.CounterVec
	undoTotal         *prometheus.CounterVec
	abilityInitTotal  prometheus.Counter
	reviewsTotal      *prometheus.CounterVec
	taxonomyLoadTotal *prometheus.CounterVec
}

// New creates a Metrics instance whose collectors carry the service name as a constant label.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method", "route"}),
		requestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: labels,
		}),
		claimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "subtasks",
			Name:        "claims_total",
			Help:        "Subtask claim attempts by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		selectionSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "annotations",
			Name:        "saves_total",
			Help:        "Annotation selection saves by round.",
			ConstLabels: labels,
		}, []string{"round"}),
		rowsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "distribution",
			Name:        "rows_released_total",
			Help:        "Row assignments released to workers.",
			ConstLabels: labels,
		}),
		releaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "distribution",
			Name:        "release_duration_seconds",
			Help:        "Duration of a task release pass by status.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"status"}),
		consensusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "distribution",
			Name:        "consensus_total",
			Help:        "Finished rows by consensus outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		undoTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "distribution",
			Name:        "undo_total",
			Help:        "Rolled back results by undo mode.",
			ConstLabels: labels,
		}, []string{"mode"}),
		abilityInitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "abilities",
			Name:        "initializations_total",
			Help:        "Ability vectors initialized on claim.",
			ConstLabels: labels,
		}),
		reviewsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "subtasks",
			Name:        "reviews_total",
			Help:        "Subtask review decisions by verdict.",
			ConstLabels: labels,
		}, []string{"verdict"}),
		taxonomyLoadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "taxonomy",
			Name:        "loads_total",
			Help:        "Taxonomy loads by source format and cache result.",
			ConstLabels: labels,
		}, []string{"format", "cache"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.claimsTotal,
		m.selectionSaves,
		m.rowsReleased,
		m.releaseDuration,
		m.consensusTotal,
		m.undoTotal,
		m.abilityInitTotal,
		m.reviewsTotal,
		m.taxonomyLoadTotal,
	)

	return m
}

// Registry returns the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency labelled by the matched route pattern.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			m.requestInFlight.Inc()
			defer m.requestInFlight.Dec()

			next.ServeHTTP(recorder, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
			m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func (m *Metrics) RecordClaim(outcome string) {
	if m == nil {
		return
	}
	m.claimsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSelectionSave(round int) {
	if m == nil {
		return
	}
	m.selectionSaves.WithLabelValues(strconv.Itoa(round)).Inc()
}

func (m *Metrics) RecordAbilityInit() {
	if m == nil {
		return
	}
	m.abilityInitTotal.Inc()
}

func (m *Metrics) RecordReview(verdict string) {
	if m == nil {
		return
	}
	m.reviewsTotal.WithLabelValues(verdict).Inc()
}

func (m *Metrics) RecordTaxonomyLoad(format string, cached bool) {
	if m == nil {
		return
	}
	cache := "miss"
	if cached {
		cache = "hit"
	}
	m.taxonomyLoadTotal.WithLabelValues(format, cache).Inc()
}

// ObserveRelease records one release pass and the rows it assigned.
func (m *Metrics) ObserveRelease(duration time.Duration, released int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.releaseDuration.WithLabelValues(status).Observe(duration.Seconds())
	if released > 0 {
		m.rowsReleased.Add(float64(released))
	}
}

func (m *Metrics) RecordConsensus(outcome string) {
	if m == nil {
		return
	}
	m.consensusTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordUndo(mode string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.undoTotal.WithLabelValues(mode).Add(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

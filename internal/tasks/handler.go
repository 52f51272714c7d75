package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/taxonomy"
	"github.com/JaimeStill/labelhub/pkg/handlers"
	"github.com/JaimeStill/labelhub/pkg/pagination"
	"github.com/JaimeStill/labelhub/pkg/routes"
)

// Handler provides HTTP endpoints for task operations.
type Handler struct {
	sys           System
	logger        *slog.Logger
	pagination    pagination.Config
	maxUploadSize int64
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

// TaxonomyView is the taxonomy of a task with the analyzed shape of each dimension.
type TaxonomyView struct {
	Dimensions []DimensionView `json:"dimensions"`
}

// DimensionView pairs a dimension's source tree with its depth and level titles.
type DimensionView struct {
	Name        string                 `json:"name"`
	MaxDepth    int                    `json:"max_depth"`
	LevelTitles []string               `json:"level_titles"`
	Categories  []taxonomy.RawCategory `json:"categories"`
}

// NewTaxonomyView renders tax for clients.
func NewTaxonomyView(tax *taxonomy.Taxonomy) TaxonomyView {
	raw := tax.Raw()
	view := TaxonomyView{Dimensions: make([]DimensionView, len(raw))}
	for i, d := range tax.Dimensions {
		view.Dimensions[i] = DimensionView{
			Name:        d.Name,
			MaxDepth:    d.MaxDepth,
			LevelTitles: d.LevelTitles,
			Categories:  raw[i].Categories,
		}
	}
	return view
}

// NewHandler creates a Handler with the given system, logger, pagination config, and upload size limit.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "tasks"),
		pagination:    pagination,
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for task endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/tasks",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "DELETE", Pattern: "/{id}", Handler: h.Delete},
			{Method: "POST", Pattern: "/{id}/approve", Handler: h.Approve},
			{Method: "POST", Pattern: "/{id}/publish", Handler: h.Publish},
			{Method: "GET", Pattern: "/{id}/taxonomy", Handler: h.Taxonomy},
			{Method: "GET", Pattern: "/{id}/reviewers", Handler: h.Reviewers},
			{Method: "POST", Pattern: "/{id}/reviewers", Handler: h.AddReviewer},
			{Method: "DELETE", Pattern: "/{id}/reviewers/{workerId}", Handler: h.RemoveReviewer},
		},
	}
}

// List returns a paginated list of tasks with optional query parameter filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search accepts a JSON body with pagination and filter criteria and returns matching tasks.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidTask)
		return
	}

	req.PageRequest.Normalize(h.pagination)

	result, err := h.sys.List(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single task by its UUID path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	t, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, t)
}

// Create processes a multipart form carrying the taxonomy and dataset files
// together with the task settings.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return
	}

	cmd, err := commandFromForm(r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	t, err := h.sys.Create(r.Context(), actor, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, t)
}

// Approve marks a task as approved for publishing.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sys.Approve)
}

// Publish moves an approved task from OPEN to IN_PROGRESS.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sys.Publish)
}

// Delete removes a task and every record and blob that belongs to it.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrUnauthenticated)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	if err := h.sys.Delete(r.Context(), actor, id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Taxonomy returns the task's taxonomy with per-dimension depth and level titles.
func (h *Handler) Taxonomy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	tax, err := h.sys.Taxonomy(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, NewTaxonomyView(tax))
}

// Reviewers lists the task's designated reviewers.
func (h *Handler) Reviewers(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.managed(w, r)
	if !ok {
		return
	}

	reviewers, err := h.sys.Reviewers(r.Context(), actor, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, reviewers)
}

// AddReviewer designates a worker to review the task's disputed rows.
func (h *Handler) AddReviewer(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.managed(w, r)
	if !ok {
		return
	}

	var cmd ReviewerCommand
	if err := handlers.DecodeJSON(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	rv, err := h.sys.AddReviewer(r.Context(), actor, id, cmd.WorkerID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, rv)
}

// RemoveReviewer withdraws a worker's reviewer designation.
func (h *Handler) RemoveReviewer(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.managed(w, r)
	if !ok {
		return
	}

	if err := h.sys.RemoveReviewer(r.Context(), actor, id, r.PathValue("workerId")); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) managed(w http.ResponseWriter, r *http.Request) (identity.Actor, uuid.UUID, bool) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrUnauthenticated)
		return identity.Actor{}, uuid.Nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return identity.Actor{}, uuid.Nil, false
	}

	return actor, id, true
}

type transitionFunc func(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Task, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrUnauthenticated)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	t, err := fn(r.Context(), actor, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, t)
}

func commandFromForm(r *http.Request) (CreateCommand, error) {
	cmd := CreateCommand{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}

	ints := []struct {
		field string
		dst   *int
	}{
		{"max_workers", &cmd.MaxWorkers},
		{"rows_per_subtask", &cmd.RowsPerSubtask},
		{"points_per_subtask", &cmd.PointsPerSubtask},
		{"required_count", &cmd.RequiredCount},
		{"publish_cycle", &cmd.PublishCycle},
		{"publish_limit", &cmd.PublishLimit},
	}
	for _, f := range ints {
		v := strings.TrimSpace(r.FormValue(f.field))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return CreateCommand{}, fmt.Errorf("%w: %s must be an integer", ErrInvalidTask, f.field)
		}
		*f.dst = n
	}

	var err error
	if cmd.Taxonomy, err = readFile(r, "taxonomy"); err != nil {
		return CreateCommand{}, err
	}
	if cmd.Dataset, err = readFile(r, "dataset"); err != nil {
		return CreateCommand{}, err
	}
	return cmd, nil
}

func readFile(r *http.Request, field string) (File, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return File{}, fmt.Errorf("%w: %s file is required", ErrInvalidFile, field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return File{}, fmt.Errorf("%w: read %s: %v", ErrInvalidFile, field, err)
	}

	return File{
		Name:        header.Filename,
		ContentType: contentType(header, data),
		Data:        data,
	}, nil
}

func contentType(header *multipart.FileHeader, data []byte) string {
	ct := strings.TrimSpace(header.Header.Get("Content-Type"))
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return http.DetectContentType(data)
}

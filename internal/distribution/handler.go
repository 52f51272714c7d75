package distribution

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/tasks"
	"github.com/JaimeStill/labelhub/pkg/handlers"
	"github.com/JaimeStill/labelhub/pkg/pagination"
	"github.com/JaimeStill/labelhub/pkg/routes"
)

// Handler provides HTTP endpoints for distribution operations.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "distribution"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for distribution endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/distribution",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{taskId}/results", Handler: h.ListResults},
			{Method: "PUT", Pattern: "/results/{id}", Handler: h.SaveResult},
			{Method: "POST", Pattern: "/{taskId}/release", Handler: h.Release},
			{Method: "POST", Pattern: "/{taskId}/review", Handler: h.ReleaseReview},
			{Method: "POST", Pattern: "/{taskId}/recheck", Handler: h.Recheck},
			{Method: "POST", Pattern: "/{taskId}/undo", Handler: h.Undo},
		},
	}
}

// ExportRoutes returns the results download, mounted beside the task endpoints.
func (h *Handler) ExportRoutes() routes.Group {
	return routes.Group{
		Prefix: "/tasks",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{taskId}/export", Handler: h.Export},
		},
	}
}

// ListResults returns a page of a task's results. Workers only see their own.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.task(w, r)
	if !ok {
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.ListResults(r.Context(), actor, taskID, page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// SaveResult stores the calling worker's labels for an assigned row.
func (h *Handler) SaveResult(w http.ResponseWriter, r *http.Request) {
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

	var cmd SaveCommand
	if err := handlers.DecodeJSON(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	res, err := h.sys.SaveResult(r.Context(), actor, id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, res)
}

// Release hands out a batch for the task immediately.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.task(w, r)
	if !ok {
		return
	}

	report, err := h.sys.Release(r.Context(), actor, taskID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, report)
}

// ReleaseReview hands out the task's pending reviews immediately.
func (h *Handler) ReleaseReview(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.task(w, r)
	if !ok {
		return
	}

	report, err := h.sys.ReleaseReview(r.Context(), actor, taskID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, report)
}

// Recheck votes on rows left unsettled with all their results in.
func (h *Handler) Recheck(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.task(w, r)
	if !ok {
		return
	}

	report, err := h.sys.Recheck(r.Context(), actor, taskID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, report)
}

// Export downloads the task's results as a workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.task(w, r)
	if !ok {
		return
	}

	export, err := h.sys.Export(r.Context(), actor, taskID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", ExportContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", url.PathEscape(export.Filename)))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(export.Data); err != nil {
		h.logger.Warn("export interrupted", "task_id", taskID, "error", err)
	}
}

// Undo rolls back a worker's day when a date is given, else a single row.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.task(w, r)
	if !ok {
		return
	}

	var cmd UndoCommand
	if err := handlers.DecodeJSON(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	var (
		report UndoReport
		err    error
	)
	switch {
	case cmd.WorkerID == "":
		err = ErrInvalidUndo
	case cmd.Date != "":
		report, err = h.sys.UndoByDay(r.Context(), actor, taskID, cmd.WorkerID, cmd.Date)
	case cmd.RowIndex != nil:
		report, err = h.sys.UndoByRow(r.Context(), actor, taskID, cmd.WorkerID, *cmd.RowIndex, cmd.Round)
	default:
		err = ErrInvalidUndo
	}
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, report)
}

func (h *Handler) task(w http.ResponseWriter, r *http.Request) (identity.Actor, uuid.UUID, bool) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrUnauthenticated)
		return identity.Actor{}, uuid.Nil, false
	}

	taskID, err := uuid.Parse(r.PathValue("taskId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, tasks.ErrNotFound)
		return identity.Actor{}, uuid.Nil, false
	}

	return actor, taskID, true
}

package subtasks

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/abilities"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/pkg/handlers"
	"github.com/JaimeStill/labelhub/pkg/pagination"
	"github.com/JaimeStill/labelhub/pkg/routes"
)

// Handler provides HTTP endpoints for subtask operations.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "subtasks"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for subtask endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Children: []routes.Group{
			{
				Prefix: "/tasks/{taskId}/subtasks",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: h.ListByTask},
				},
			},
			{
				Prefix: "/subtasks/{id}",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: h.Find},
					{Method: "GET", Pattern: "/rows", Handler: h.Rows},
					{Method: "POST", Pattern: "/claim", Handler: h.Claim},
					{Method: "POST", Pattern: "/submit", Handler: h.Submit},
					{Method: "POST", Pattern: "/review/complete", Handler: h.CompleteReview},
					{Method: "POST", Pattern: "/review/reject", Handler: h.RejectReview},
				},
			},
		},
	}
}

// ListByTask returns a page of a task's subtasks ordered by row range.
func (h *Handler) ListByTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("taskId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	var filters Filters
	if s := r.URL.Query().Get("status"); s != "" {
		filters.Status = &s
	}
	if wid := r.URL.Query().Get("worker_id"); wid != "" {
		filters.WorkerID = &wid
	}

	result, err := h.sys.ListByTask(r.Context(), taskID, page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single subtask.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	s, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, s)
}

// Rows returns the dataset rows of the subtask.
func (h *Handler) Rows(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	rows, err := h.sys.Rows(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, rows)
}

// Claim assigns the subtask to the calling worker. The body is optional.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}

	var cmd ClaimCommand
	if err := handlers.DecodeJSON(r, &cmd); err != nil && !errors.Is(err, io.EOF) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	if len(cmd.Expertise) > abilities.MaxExpertise {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, abilities.ErrInvalidExpertise)
		return
	}

	s, err := h.sys.Claim(r.Context(), actor, id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, s)
}

// Submit hands the subtask over for review.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}

	s, err := h.sys.Submit(r.Context(), actor, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, s)
}

// CompleteReview approves the subtask and credits its worker. The body is optional.
func (h *Handler) CompleteReview(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}

	var cmd ReviewCommand
	if err := handlers.DecodeJSON(r, &cmd); err != nil && !errors.Is(err, io.EOF) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	review, err := h.sys.CompleteReview(r.Context(), actor, id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, review)
}

// RejectReview marks the subtask's rows REJECTED.
func (h *Handler) RejectReview(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}

	s, err := h.sys.RejectReview(r.Context(), actor, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, s)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (identity.Actor, uuid.UUID, bool) {
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

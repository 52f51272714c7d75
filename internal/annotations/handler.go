package annotations

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/pkg/handlers"
	"github.com/JaimeStill/labelhub/pkg/routes"
)

var errInvalidRow = errors.New("row must be a non-negative integer")

// Handler provides HTTP endpoints for row annotations.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "annotations"),
	}
}

// Routes returns the route group definition for annotation endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/subtasks/{id}/annotations",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{row}", Handler: h.Open},
			{Method: "PUT", Pattern: "/{row}", Handler: h.Save},
			{Method: "PUT", Pattern: "/{row}/status", Handler: h.SetStatus},
		},
	}
}

// List returns the subtask's opened rows.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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

	items, err := h.sys.List(r.Context(), actor, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, items)
}

// Open returns one row's annotation, creating it on first visit.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	actor, id, row, ok := h.target(w, r)
	if !ok {
		return
	}

	a, err := h.sys.Open(r.Context(), actor, id, row)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, a)
}

// Save replaces one row's selections.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	actor, id, row, ok := h.target(w, r)
	if !ok {
		return
	}

	var cmd SaveCommand
	if err := handlers.DecodeJSON(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	a, err := h.sys.Save(r.Context(), actor, id, row, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, a)
}

// SetStatus records a reviewer verdict for one row.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, row, ok := h.target(w, r)
	if !ok {
		return
	}

	var cmd StatusCommand
	if err := handlers.DecodeJSON(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	a, err := h.sys.SetStatus(r.Context(), actor, id, row, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, a)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (identity.Actor, uuid.UUID, int, bool) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrUnauthenticated)
		return identity.Actor{}, uuid.Nil, 0, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return identity.Actor{}, uuid.Nil, 0, false
	}

	row, err := strconv.Atoi(r.PathValue("row"))
	if err != nil || row < 0 {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidRow)
		return identity.Actor{}, uuid.Nil, 0, false
	}

	return actor, id, row, true
}

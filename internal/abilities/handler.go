package abilities

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/pkg/handlers"
	"github.com/JaimeStill/labelhub/pkg/pagination"
	"github.com/JaimeStill/labelhub/pkg/routes"
)

// Handler provides HTTP endpoints for ability queries.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "abilities"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for ability endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/abilities",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{taskId}", Handler: h.ListByTask},
			{Method: "GET", Pattern: "/{taskId}/{workerId}", Handler: h.Find},
		},
	}
}

// ListByTask returns a page of a task's ability vectors.
func (h *Handler) ListByTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrUnauthenticated)
		return
	}

	taskID, err := uuid.Parse(r.PathValue("taskId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrTaskNotFound)
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.ListByTask(r.Context(), actor, taskID, page)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns one worker's ability vector.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrUnauthenticated)
		return
	}

	taskID, err := uuid.Parse(r.PathValue("taskId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrTaskNotFound)
		return
	}

	v, err := h.sys.Find(r.Context(), actor, taskID, r.PathValue("workerId"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, v)
}

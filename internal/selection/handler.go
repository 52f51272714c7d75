package selection

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/pkg/handlers"
	"github.com/JaimeStill/labelhub/pkg/routes"
)

// EngineSource builds the engine for a task's taxonomy.
type EngineSource interface {
	Engine(ctx context.Context, taskID uuid.UUID) (*Engine, error)
}

// ApplyRequest is the body of the apply endpoint.
type ApplyRequest struct {
	Selections []Selection `json:"selections"`
	Operation  Operation   `json:"operation"`
}

// ApplyResponse carries the next selection list and its folded views per dimension.
type ApplyResponse struct {
	Selections []Selection       `json:"selections"`
	Views      map[string][]View `json:"views"`
}

// Handler exposes the engine as a stateless HTTP helper.
type Handler struct {
	src    EngineSource
	logger *slog.Logger
}

// NewHandler creates a Handler over src.
func NewHandler(src EngineSource, logger *slog.Logger) *Handler {
	return &Handler{
		src:    src,
		logger: logger.With("handler", "selection"),
	}
}

// Routes returns the route group definition for selection endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/selection",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/{taskId}/apply", Handler: h.Apply},
		},
	}
}

// Apply runs one operation against the posted selection list.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("taskId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrTaskNotFound)
		return
	}

	var req ApplyRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	engine, err := h.src.Engine(r.Context(), taskID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if err := engine.Validate(req.Selections); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	next, err := engine.Apply(req.Selections, req.Operation)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, ApplyResponse{
		Selections: next,
		Views:      engine.Views(next),
	})
}

// SourceFunc adapts a function to EngineSource.
type SourceFunc func(ctx context.Context, taskID uuid.UUID) (*Engine, error)

// Engine calls f.
func (f SourceFunc) Engine(ctx context.Context, taskID uuid.UUID) (*Engine, error) {
	return f(ctx, taskID)
}

package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/tasks"
	"github.com/JaimeStill/labelhub/pkg/handlers"
	"github.com/JaimeStill/labelhub/pkg/routes"
	"github.com/JaimeStill/labelhub/pkg/storage"
)

// taskFinder resolves the task owning a blob.
type taskFinder interface {
	Find(ctx context.Context, id uuid.UUID) (*tasks.Task, error)
}

type storageHandler struct {
	store  storage.System
	tasks  taskFinder
	logger *slog.Logger
}

func newStorageHandler(
	store storage.System,
	tasks taskFinder,
	logger *slog.Logger,
) *storageHandler {
	return &storageHandler{
		store:  store,
		tasks:  tasks,
		logger: logger.With("handler", "storage"),
	}
}

func (h *storageHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/storage",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{key...}", Handler: h.download},
		},
	}
}

// download streams a task's raw taxonomy or dataset blob to its owner or an admin.
// Keys take the form tasks/{taskId}/{kind}/{filename}.
func (h *storageHandler) download(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrUnauthenticated)
		return
	}

	key := r.PathValue("key")
	if err := storage.ValidateKey(key); err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	taskID, ok := ownerTask(key)
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusNotFound, storage.ErrNotFound)
		return
	}

	t, err := h.tasks.Find(r.Context(), taskID)
	if err != nil {
		handlers.RespondError(w, h.logger, tasks.MapHTTPStatus(err), err)
		return
	}
	if !actor.CanManage(t.PublisherID) {
		handlers.RespondError(w, h.logger, http.StatusForbidden, identity.ErrForbidden)
		return
	}

	result, err := h.store.Download(r.Context(), key)
	if err != nil {
		handlers.RespondError(
			w, h.logger,
			storage.MapHTTPStatus(err), err,
		)
		return
	}
	defer result.Body.Close()

	w.Header().Set("Content-Type", result.ContentType)

	if result.ContentLength > 0 {
		w.Header().Set(
			"Content-Length",
			strconv.FormatInt(result.ContentLength, 10),
		)
	}
	w.Header().Set(
		"Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", path.Base(key)),
	)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, result.Body); err != nil {
		h.logger.Warn("download interrupted", "key", key, "error", err)
	}
}

func ownerTask(key string) (uuid.UUID, bool) {
	parts := strings.SplitN(key, "/", 4)
	if len(parts) != 4 || parts[0] != "tasks" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

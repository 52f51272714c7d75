package api

import (
	"net/http"

	"github.com/JaimeStill/labelhub/internal/config"
	"github.com/JaimeStill/labelhub/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	storageHandler := newStorageHandler(
		runtime.Storage,
		domain.Tasks,
		runtime.Logger,
	)

	distribution := domain.Distribution.Handler()
	groups := []routes.Group{
		domain.Tasks.Handler(cfg.API.MaxUploadSizeBytes()).Routes(),
		domain.Subtasks.Handler().Routes(),
		domain.Annotations.Handler().Routes(),
		domain.Selection(runtime).Routes(),
		domain.Abilities.Handler().Routes(),
		distribution.Routes(),
		distribution.ExportRoutes(),
		storageHandler.routes(),
	}

	routes.Register(mux, groups...)
	runtime.Logger.Info("routes registered", "count", len(routes.Patterns(groups...)))
}

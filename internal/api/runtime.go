package api

import (
	"github.com/JaimeStill/labelhub/internal/config"
	"github.com/JaimeStill/labelhub/internal/infrastructure"
	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination   pagination.Config
	Selection    selection.Config
	Scheduler    config.SchedulerConfig
	Requirements config.RequirementsConfig
	CacheEntries int
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle:  infra.Lifecycle,
			Logger:     infra.Logger.With("module", "api"),
			Database:   infra.Database,
			Storage:    infra.Storage,
			Events:     infra.Events,
			Metrics:    infra.Metrics,
			Resilience: infra.Resilience,
		},
		Pagination: cfg.API.Pagination,
		Selection: selection.Config{
			MultiLeaf: cfg.Selection.MultiLeaf,
			ExtraRows: cfg.Selection.ExtraRows,
		},
		Scheduler:    cfg.Scheduler,
		Requirements: cfg.Requirements,
		CacheEntries: cfg.API.CacheEntries,
	}
}

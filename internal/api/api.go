// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/labelhub/internal/config"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/infrastructure"
	"github.com/JaimeStill/labelhub/pkg/middleware"
	"github.com/JaimeStill/labelhub/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// It also starts the release scheduler and, when enabled, the requirement
// worker against the infrastructure lifecycle.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)

	domain, err := NewDomain(runtime)
	if err != nil {
		return nil, err
	}
	if err := domain.Scheduler.Start(infra.Lifecycle); err != nil {
		return nil, fmt.Errorf("scheduler start failed: %w", err)
	}
	if domain.Requirements != nil {
		if err := domain.Requirements.Start(infra.Lifecycle); err != nil {
			return nil, fmt.Errorf("requirements start failed: %w", err)
		}
	}

	actors, err := identity.New(infra.Lifecycle.Context(), &cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("identity init failed: %w", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))
	m.Use(middleware.RateLimit(&cfg.API.RateLimit))
	m.Use(identity.Middleware(actors, runtime.Logger))
	m.Use(runtime.Metrics.Middleware())

	return m, nil
}

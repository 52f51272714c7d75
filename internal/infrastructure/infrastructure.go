// Package infrastructure provides core service initialization for application startup.
// It assembles the common dependencies domain systems require.
package infrastructure

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/JaimeStill/labelhub/internal/config"
	"github.com/JaimeStill/labelhub/pkg/database"
	"github.com/JaimeStill/labelhub/pkg/events"
	"github.com/JaimeStill/labelhub/pkg/lifecycle"
	"github.com/JaimeStill/labelhub/pkg/metrics"
	"github.com/JaimeStill/labelhub/pkg/resilience"
	"github.com/JaimeStill/labelhub/pkg/storage"
)

const serviceName = "labelhub"

// Infrastructure holds the core systems required by all domain modules.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Events    events.Bus
	Metrics   *metrics.Metrics

	// Resilience wraps calls to remote dependencies: the message broker
	// and the requirement model.
	Resilience *resilience.Executor
}

// New creates an Infrastructure from the application configuration, logging to stderr.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit log destination.
func NewWithWriter(cfg *config.Config, w io.Writer) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := NewLogger(w, cfg.SlogLevel())

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	bus, err := newBus(&cfg.Messaging, executor, logger)
	if err != nil {
		return nil, fmt.Errorf("events init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle:  lc,
		Logger:     logger,
		Database:   db,
		Storage:    store,
		Events:     bus,
		Metrics:    metrics.New(serviceName),
		Resilience: executor,
	}, nil
}

// NewLogger builds the service's JSON logger tagged with the service name.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", serviceName)
}

func newBus(cfg *events.Config, executor *resilience.Executor, logger *slog.Logger) (events.Bus, error) {
	if !cfg.Enabled() {
		logger.Info("messaging disabled, using in-process event bus")
		return events.NewLocal(logger), nil
	}
	return events.NewNATS(cfg, executor, logger)
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if err := i.Events.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("events start failed: %w", err)
	}
	return nil
}

package api

import (
	"fmt"

	"github.com/JaimeStill/labelhub/internal/abilities"
	"github.com/JaimeStill/labelhub/internal/annotations"
	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/distribution"
	"github.com/JaimeStill/labelhub/internal/requirements"
	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/internal/subtasks"
	"github.com/JaimeStill/labelhub/internal/tasks"
	"github.com/JaimeStill/labelhub/internal/taxonomy"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Tasks        tasks.System
	Subtasks     subtasks.System
	Annotations  annotations.System
	Abilities    abilities.System
	Distribution distribution.System
	Scheduler    *distribution.Scheduler
	// Requirements is nil when requirement generation is disabled.
	Requirements *requirements.Worker
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) (*Domain, error) {
	db := runtime.Database.Connection()

	taxa := taxonomy.NewProvider(runtime.Storage, runtime.CacheEntries, runtime.Metrics, runtime.Logger)
	rows := datasets.NewProvider(runtime.Storage, runtime.CacheEntries, runtime.Logger)

	tasksSystem := tasks.New(
		db,
		runtime.Storage,
		taxa,
		rows,
		runtime.Events,
		runtime.Selection,
		runtime.Scheduler.PublishLimit,
		runtime.Logger,
		runtime.Pagination,
	)

	subtasksSystem := subtasks.New(
		db,
		taxa,
		rows,
		runtime.Metrics,
		runtime.Logger,
		runtime.Pagination,
	)

	annotationsSystem := annotations.New(
		db,
		tasksSystem,
		rows,
		runtime.Metrics,
		runtime.Logger,
	)

	distributionSystem := distribution.New(
		db,
		tasksSystem,
		rows,
		runtime.Events,
		distribution.Config{
			Location:    runtime.Scheduler.Location(),
			MinuteCycle: runtime.Scheduler.MinuteCycle,
			Threshold:   runtime.Scheduler.ConsensusThreshold,
			Concurrency: runtime.Scheduler.Concurrency,
		},
		runtime.Metrics,
		runtime.Logger,
		runtime.Pagination,
	)

	scheduler, err := distribution.NewScheduler(
		&runtime.Scheduler,
		runtime.Events,
		distributionSystem,
		runtime.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}

	var worker *requirements.Worker
	if runtime.Requirements.Enabled {
		completer, err := requirements.NewCompleter(runtime.Lifecycle.Context(), &runtime.Requirements.Agent)
		if err != nil {
			return nil, fmt.Errorf("requirements init failed: %w", err)
		}
		generator := requirements.NewGenerator(
			completer,
			runtime.Resilience,
			runtime.Requirements.BatchSize,
			runtime.Requirements.Concurrency,
			runtime.Logger,
		)
		worker = requirements.NewWorker(db, runtime.Events, taxa, rows, generator, runtime.Logger)
	}

	return &Domain{
		Requirements: worker,
		Tasks:        tasksSystem,
		Subtasks:     subtasksSystem,
		Annotations:  annotationsSystem,
		Abilities:    abilities.New(db, runtime.Logger, runtime.Pagination),
		Distribution: distributionSystem,
		Scheduler:    scheduler,
	}, nil
}

// Selection returns the stateless selection endpoints, resolving engines through tasks.
func (d *Domain) Selection(runtime *Runtime) *selection.Handler {
	return selection.NewHandler(d.Tasks, runtime.Logger)
}

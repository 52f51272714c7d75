package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JaimeStill/labelhub/internal/config"
	"github.com/JaimeStill/labelhub/pkg/events"
	"github.com/JaimeStill/labelhub/pkg/lifecycle"
)

// TriggerQueue is the queue group whose members run scheduled releases, so
// each trigger is handled by one replica.
const TriggerQueue = "distributors"

// Releaser runs a scheduled release pass.
type Releaser interface {
	ReleaseDue(ctx context.Context) (Summary, error)
}

// Trigger is the payload published on each scheduler tick.
type Trigger struct {
	FiredAt time.Time `json:"fired_at"`
}

// Scheduler publishes a release trigger on a cron schedule and consumes
// triggers on behalf of its replica.
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	enabled  bool
	bus      events.Bus
	releaser Releaser
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler from the scheduler config. With the config
// disabled it still consumes triggers but never fires them.
func NewScheduler(cfg *config.SchedulerConfig, bus events.Bus, releaser Releaser, logger *slog.Logger) (*Scheduler, error) {
	if _, err := config.CronParser.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithLocation(cfg.Location()),
		),
		spec:     cfg.Spec,
		enabled:  cfg.Enabled,
		bus:      bus,
		releaser: releaser,
		logger:   logger.With("system", "scheduler"),
	}, nil
}

// Start subscribes to triggers and, when enabled, starts the cron clock.
// Both stop when the coordinator shuts down.
func (s *Scheduler) Start(lc *lifecycle.Coordinator) error {
	ctx := lc.Context()

	if err := s.bus.QueueSubscribe(ctx, events.SubjectReleaseTrigger, TriggerQueue, s.handle); err != nil {
		return fmt.Errorf("subscribe release trigger: %w", err)
	}

	if !s.enabled {
		s.logger.Info("scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, func() { s.Fire(ctx) }); err != nil {
		return fmt.Errorf("schedule release: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec)

	lc.OnShutdown(func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("scheduler stopped")
	})
	return nil
}

// Fire publishes one release trigger.
func (s *Scheduler) Fire(ctx context.Context) {
	if err := events.PublishJSON(ctx, s.bus, events.SubjectReleaseTrigger, Trigger{FiredAt: time.Now().UTC()}); err != nil {
		s.logger.Error("release trigger publish failed", "error", err)
	}
}

func (s *Scheduler) handle(ctx context.Context, data []byte) error {
	env, err := events.Decode[Trigger](data)
	if err != nil {
		return fmt.Errorf("decode trigger: %w", err)
	}

	summary, err := s.releaser.ReleaseDue(ctx)
	if err != nil {
		return fmt.Errorf("scheduled release: %w", err)
	}

	s.logger.Info("release trigger handled",
		"fired_at", env.Data.FiredAt,
		"processed", summary.Processed,
		"released", summary.Released,
		"failed", summary.Failed,
	)
	return nil
}

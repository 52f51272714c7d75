package resilience_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/JaimeStill/labelhub/pkg/resilience"
)

var errTransient = errors.New("transient")

func transient(err error) resilience.Classification {
	return resilience.Classification{Retryable: errors.Is(err, errTransient), RecordFailure: true}
}

func newExecutor(cfg resilience.Config) *resilience.Executor {
	return resilience.NewExecutor(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	cfg := resilience.DefaultConfig()
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = time.Millisecond
	exec := newExecutor(cfg)

	calls := 0
	err := exec.Execute(context.Background(), "publish", func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, transient)

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	exec := newExecutor(resilience.DefaultConfig())
	permanent := errors.New("bad payload")

	calls := 0
	err := exec.Execute(context.Background(), "publish", func(context.Context) error {
		calls++
		return permanent
	}, transient)

	if !errors.Is(err, permanent) {
		t.Fatalf("Execute() error = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecuteOpensBreaker(t *testing.T) {
	cfg := resilience.DefaultConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	exec := newExecutor(cfg)

	fail := func(context.Context) error { return errors.New("down") }
	for range 2 {
		exec.Execute(context.Background(), "publish", fail, nil)
	}

	err := exec.Execute(context.Background(), "publish", func(context.Context) error { return nil }, nil)
	if !resilience.IsCircuitOpen(err) {
		t.Errorf("Execute() error = %v, want open circuit", err)
	}

	if err := exec.Execute(context.Background(), "other", func(context.Context) error { return nil }, nil); err != nil {
		t.Errorf("independent operation affected: %v", err)
	}
}

func TestExecuteHonorsCancellation(t *testing.T) {
	exec := newExecutor(resilience.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, "publish", func(context.Context) error { return nil }, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/JaimeStill/labelhub/pkg/lifecycle"
	"github.com/JaimeStill/labelhub/pkg/resilience"
)

type natsBus struct {
	conn     *nats.Conn
	executor *resilience.Executor
	logger   *slog.Logger
	cfg      *Config
}

// NewNATS connects to the configured NATS server. Publishes run through the executor.
func NewNATS(cfg *Config, executor *resilience.Executor, logger *slog.Logger) (Bus, error) {
	logger = logger.With("system", "events")

	conn, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeoutDuration()),
		nats.ReconnectWait(cfg.ReconnectWaitDuration()),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DrainTimeout(cfg.DrainTimeoutDuration()),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &natsBus{
		conn:     conn,
		executor: executor,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

func (b *natsBus) Start(lc *lifecycle.Coordinator) error {
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		b.logger.Info("draining nats connection")
		if err := b.conn.Drain(); err != nil {
			b.logger.Error("nats drain failed", "error", err)
			b.conn.Close()
		}
	})
	return nil
}

func (b *natsBus) Publish(ctx context.Context, subject string, payload []byte) error {
	call := func(context.Context) error {
		if err := b.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if b.executor == nil {
		return call(ctx)
	}
	return b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
}

func (b *natsBus) QueueSubscribe(ctx context.Context, subject, queue string, handler Handler) error {
	sub, err := b.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		if err := handler(ctx, msg.Data); err != nil {
			b.logger.Error("event handler failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			b.logger.Warn("nats subscription drain failed", "subject", subject, "error", err)
		}
	}()

	return nil
}

func classifyNATSError(err error) resilience.Classification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Classification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting) {
		return resilience.Classification{Retryable: true, RecordFailure: true}
	}
	return resilience.Permanent(err)
}

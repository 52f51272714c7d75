package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/JaimeStill/labelhub/pkg/lifecycle"
)

type member struct {
	ctx     context.Context
	handler Handler
}

type group struct {
	members []*member
	next    int
}

type localBus struct {
	mu     sync.Mutex
	groups map[string]map[string]*group
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewLocal creates an in-process bus. Each published message is delivered
// asynchronously to one member per queue group, rotating between members.
func NewLocal(logger *slog.Logger) Bus {
	return &localBus{
		groups: make(map[string]map[string]*group),
		logger: logger.With("system", "events"),
	}
}

func (b *localBus) Start(lc *lifecycle.Coordinator) error {
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		b.Close()
	})
	return nil
}

// Close stops accepting publishes and waits for in-flight deliveries.
func (b *localBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *localBus) Publish(ctx context.Context, subject string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	for _, g := range b.groups[subject] {
		if len(g.members) == 0 {
			continue
		}
		m := g.members[g.next%len(g.members)]
		g.next++

		data := slices.Clone(payload)
		b.wg.Go(func() {
			if m.ctx.Err() != nil {
				return
			}
			if err := m.handler(context.WithoutCancel(ctx), data); err != nil {
				b.logger.Error("event handler failed", "subject", subject, "error", err)
			}
		})
	}
	return nil
}

func (b *localBus) QueueSubscribe(ctx context.Context, subject, queue string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	queues, ok := b.groups[subject]
	if !ok {
		queues = make(map[string]*group)
		b.groups[subject] = queues
	}
	g, ok := queues[queue]
	if !ok {
		g = &group{}
		queues[queue] = g
	}

	m := &member{ctx: ctx, handler: handler}
	g.members = append(g.members, m)

	context.AfterFunc(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		g.members = slices.DeleteFunc(g.members, func(x *member) bool { return x == m })
	})

	return nil
}

// Package events provides a subject-based event bus with a NATS implementation
// and an in-process implementation for single-replica deployments and tests.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/JaimeStill/labelhub/pkg/lifecycle"
)

// Subjects published by the labeling service.
const (
	SubjectTaskCreated    = "labelhub.task.created"
	SubjectBatchReleased  = "labelhub.batch.released"
	SubjectRowFinished    = "labelhub.row.finished"
	SubjectReleaseTrigger = "labelhub.distribution.trigger"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// Handler processes one delivered message payload.
type Handler func(ctx context.Context, data []byte) error

// Bus publishes and consumes events.
type Bus interface {
	// Publish sends payload on subject.
	Publish(ctx context.Context, subject string, payload []byte) error
	// QueueSubscribe delivers each message on subject to exactly one member of
	// the named queue group. Delivery stops when ctx is cancelled.
	QueueSubscribe(ctx context.Context, subject, queue string, handler Handler) error
	// Start registers lifecycle hooks for draining and closing the bus.
	Start(lc *lifecycle.Coordinator) error
}

// Envelope wraps every JSON event with its emission time.
type Envelope[T any] struct {
	Subject   string    `json:"subject"`
	EmittedAt time.Time `json:"emitted_at"`
	Data      T         `json:"data"`
}

// PublishJSON encodes data in an Envelope and publishes it.
func PublishJSON[T any](ctx context.Context, bus Bus, subject string, data T) error {
	payload, err := json.Marshal(Envelope[T]{
		Subject:   subject,
		EmittedAt: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return err
	}
	return bus.Publish(ctx, subject, payload)
}

// Decode unmarshals an Envelope payload.
func Decode[T any](payload []byte) (Envelope[T], error) {
	var env Envelope[T]
	err := json.Unmarshal(payload, &env)
	return env, err
}

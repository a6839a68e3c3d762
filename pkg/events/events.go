// Package events publishes task change notifications after successful commits.
package events

import (
	"context"
	"errors"
	"time"
)

// Event types, also used as the subject suffix
const (
	TaskCreated = "task.created"
	TaskUpdated = "task.updated"
	TaskDeleted = "task.deleted"
)

// Event describes one committed change
type Event struct {
	Type       string      `json:"type"`
	TaskID     int64       `json:"task_id"`
	Task       interface{} `json:"task,omitempty"` // post-change state; absent for deletes
	RequestID  string      `json:"request_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Publisher delivers events. Delivery is best effort: the change is already committed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event; it is used when no broker is configured
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }

// Recorder counts publish outcomes
type Recorder interface {
	RecordEvent(eventType, outcome string)
}

type instrumented struct {
	Publisher
	recorder Recorder
}

// Instrumented wraps p so every Publish is recorded as "ok" or "error"
func Instrumented(p Publisher, recorder Recorder) Publisher {
	if recorder == nil {
		return p
	}
	return &instrumented{Publisher: p, recorder: recorder}
}

func (i *instrumented) Publish(ctx context.Context, event Event) error {
	err := i.Publisher.Publish(ctx, event)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.recorder.RecordEvent(event.Type, outcome)
	return err
}

type multi []Publisher

// Multi fans every event out to all publishers; errors are joined
func Multi(publishers ...Publisher) Publisher {
	switch len(publishers) {
	case 0:
		return NopPublisher{}
	case 1:
		return publishers[0]
	}
	return multi(publishers)
}

func (m multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

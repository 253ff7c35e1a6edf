package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	RequestPlanned    = "request.planned"
	RequestTasksAdded = "request.tasks_added"
	RequestCompleted  = "request.completed"
	TaskDone          = "task.done"
	TaskApproved      = "task.approved"
	TaskUpdated       = "task.updated"
	TaskDeleted       = "task.deleted"
)

type EventPayload map[string]any

type Event struct {
	ID         string       `json:"id"`
	TS         string       `json:"ts"`
	Type       string       `json:"type"`
	EntityKind string       `json:"entity_kind"`
	EntityID   string       `json:"entity_id"`
	Actor      string       `json:"actor,omitempty"`
	Payload    EventPayload `json:"payload"`
}

type actorKey struct{}

// WithActor records who is acting; Append stamps it on every event.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the actor stored by WithActor, or "".
func Actor(ctx context.Context) string {
	a, _ := ctx.Value(actorKey{}).(string)
	return a
}

// Sink receives workflow events once the document change is durable.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// Writer fans one event out to every configured sink. A zero Writer is a no-op.
type Writer struct {
	Sinks []Sink
	Now   func() time.Time
}

func (w Writer) Append(ctx context.Context, evtType, entityKind, entityID string, payload EventPayload) error {
	if len(w.Sinks) == 0 {
		return nil
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	evt := Event{
		ID:         uuid.NewString(),
		TS:         w.Now().UTC().Format(time.RFC3339),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		Actor:      Actor(ctx),
		Payload:    payload,
	}
	// Sinks run in parallel; every failure is reported, not just the first.
	errs := make([]error, len(w.Sinks))
	var g errgroup.Group
	for i, s := range w.Sinks {
		g.Go(func() error {
			errs[i] = s.Publish(ctx, evt)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

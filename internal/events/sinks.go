package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// LogSink writes each event as a structured log record.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(ctx context.Context, evt Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "workflow event",
		"event_id", evt.ID,
		"type", evt.Type,
		"entity_kind", evt.EntityKind,
		"entity_id", evt.EntityID,
		"actor", evt.Actor,
	)
	return nil
}

// NATSSink publishes events as JSON on <Subject>.<event type>.
type NATSSink struct {
	Conn    *nats.Conn
	Subject string
}

func (s NATSSink) Publish(_ context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.Conn.Publish(s.Subject+"."+evt.Type, data); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

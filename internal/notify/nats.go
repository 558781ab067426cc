package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/fleetwatch/internal/dispatch"
)

// NATSPublisher forwards dispatch change events to a NATS subject so other
// consoles and downstream consumers see the same queue transitions. Nil-safe:
// when NATS is not configured every publish is a no-op.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher builds a publisher for the given subject.
func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = "dispatch.events"
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

var _ dispatch.EventPublisher = (*NATSPublisher)(nil)

type changeEnvelope struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	RequestID string    `json:"request_id"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	At        time.Time `json:"at"`
}

// Publish implements dispatch.EventPublisher.
func (p *NATSPublisher) Publish(ctx context.Context, change dispatch.Change) error {
	if p == nil || p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(changeEnvelope{
		EventID:   uuid.NewString(),
		Kind:      string(change.Kind),
		RequestID: change.Request.ID,
		From:      string(change.From),
		To:        string(change.To),
		Priority:  string(change.Request.Priority),
		At:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	return p.conn.PublishMsg(&nats.Msg{Subject: p.subject, Data: payload, Header: map[string][]string{
		"x-trace-id":    {traceIDFromContext(ctx)},
		"x-change-kind": {string(change.Kind)},
	}})
}

func traceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

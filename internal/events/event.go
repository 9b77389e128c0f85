package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypePTZCommand        = "ptz.command"
	TypePTZHome           = "ptz.home"
	TypeDiscoveryComplete = "discovery.completed"
	TypePlayback          = "playback.telemetry"
)

// Event is an audit record published to the message bus.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	SystemID   string         `json:"system_id"`
	Module     string         `json:"module,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType, systemID, module string, attrs map[string]any) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		SystemID:   systemID,
		Module:     module,
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events. Implementations are safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }
func (Nop) Close() error                          { return nil }

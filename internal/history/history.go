package history

import (
	"context"
	"time"
)

// EventType defines the kind of resource lifecycle event.
type EventType string

const (
	EventStart        EventType = "start"
	EventStop         EventType = "stop"
	EventRestart      EventType = "restart"
	EventConfigChange EventType = "config_change"
	EventRename       EventType = "rename"
	EventDelete       EventType = "delete"
)

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type            EventType `json:"type"`
	OccurredAt      time.Time `json:"occurred_at"`
	Name            string    `json:"name"`
	Path            string    `json:"path"`
	Enabled         bool      `json:"enabled"`
	RestartOnChange bool      `json:"restart_on_change"`
	Running         bool      `json:"running"`
	PID             int       `json:"pid"`
	Detail          string    `json:"detail,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Fanout forwards each event to every sink and returns the first error.
type Fanout []Sink

func (f Fanout) Send(ctx context.Context, e Event) error {
	var first error
	for _, s := range f {
		if err := s.Send(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

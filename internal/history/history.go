package history

import (
	"context"
	"time"
)

// EventType defines the kind of session lifecycle event.
type EventType string

const (
	EventLaunched         EventType = "launched"
	EventReattached       EventType = "reattached"
	EventPortChanged      EventType = "port_changed"
	EventReboot           EventType = "reboot"
	EventRebootModeChange EventType = "reboot_mode_changed"
	EventReleased         EventType = "released"
	EventExited           EventType = "exited"
)

// Event represents one session lifecycle event to be exported to external
// analytics systems. The store remains the source of truth for durable
// state; history is observational only.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Instance   string    `json:"instance"`
	PID        int       `json:"pid"`
	Port       uint16    `json:"port"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events. Implementations must be safe for
// concurrent use; send failures are logged by callers, never fatal.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

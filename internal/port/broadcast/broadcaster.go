// Package broadcast defines the port for broadcasting engine events to
// UI and notification collaborators.
package broadcast

import "context"

// Event types emitted by the task engine and router.
const (
	EventTaskCreated   = "task.created"
	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"
	EventStepStarted   = "step.started"
	EventStepCompleted = "step.completed"
	EventStepFailed    = "step.failed"
	EventInputRequired = "task.input_required"
	EventInputReceived = "task.input_received"
	EventRoutingChange = "routing.changed"
)

// Broadcaster sends typed events to all connected consumers.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Multi fans one event out to several broadcasters.
type Multi []Broadcaster

// BroadcastEvent delivers the event to every underlying broadcaster.
func (m Multi) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	for _, b := range m {
		b.BroadcastEvent(ctx, eventType, payload)
	}
}

// Nop discards all events. Used when no consumer is wired.
type Nop struct{}

// BroadcastEvent discards the event.
func (Nop) BroadcastEvent(context.Context, string, any) {}

// Package pubsub fans out run progress to live views.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// StateUpdated carries a pipeline snapshot taken after an event was applied.
	StateUpdated EventType = "state_updated"
	// RunFinished carries the finished run once the stream has ended.
	RunFinished EventType = "run_finished"
	// LogEntry carries one formatted debug log line.
	LogEntry EventType = "log_entry"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for NATS subjects consumed and published by AgentLens.
const (
	// SubjectCallCompleted carries a completed tool invocation emitted by the
	// external tool executor. AgentLens consumes these and appends them to
	// the history store.
	SubjectCallCompleted = "tools.call.completed"

	// SubjectCallCommitted is published after a record has been durably
	// appended, for downstream consumers (dashboards, archivers).
	SubjectCallCommitted = "tools.call.committed"
)

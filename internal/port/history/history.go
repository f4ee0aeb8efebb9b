// Package history defines the port interface for the append-only tool-call
// history store.
package history

import (
	"context"

	"github.com/agentlens/agentlens/internal/domain/call"
)

// Snapshot is an immutable point-in-time view of the retained window.
// Records are in ascending sequence order. Generation changes on every
// committed append, making it usable as a cache key: two snapshots with the
// same generation hold identical records.
type Snapshot struct {
	Records    []call.Record
	Generation uint64
}

// Store is the port interface for appending and reading call records.
type Store interface {
	// Append assigns the next sequence ID, persists the record durably and
	// admits it to the retained window, evicting the oldest record when the
	// window is over capacity. On failure the record is not committed and no
	// sequence ID is consumed.
	Append(ctx context.Context, rec *call.Record) error

	// Snapshot returns an immutable view of the retained window. It never
	// blocks a concurrent append beyond the time to copy the window.
	Snapshot() Snapshot

	// Len reports the number of currently retained records.
	Len() int

	// Close flushes and closes the underlying log.
	Close() error
}

// Package checkpoint provides persistent snapshots of graph state so a run
// can be resumed after a crash or restart.
package checkpoint

import (
	"errors"
	"time"
)

// Snapshot captures the graph state after one node executed.
type Snapshot struct {
	// RunID identifies the run this snapshot belongs to.
	RunID string
	// NodeID is the node that just executed.
	NodeID string
	// NextNode is the node that would execute next (or the END marker).
	NextNode string
	// Sequence is a per-run monotonic counter, starting at 1.
	Sequence int
	// State is the serialized graph state (JSON).
	State []byte
	// CreatedAt is the snapshot creation time (UTC).
	CreatedAt time.Time
}

// Store persists run snapshots.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores a snapshot. Sequence values within a run must be unique;
	// a duplicate sequence overwrites the earlier snapshot.
	Put(snap Snapshot) error

	// Latest returns the highest-sequence snapshot for a run.
	// Returns ErrNotFound if the run has no snapshots.
	Latest(runID string) (Snapshot, error)

	// History returns all snapshots for a run in sequence order.
	// Returns an empty slice (not an error) for unknown runs.
	History(runID string) ([]Snapshot, error)

	// Purge removes all snapshots for a run. Unknown runs are a no-op.
	Purge(runID string) error

	// Close releases underlying resources.
	Close() error
}

// Sentinel errors.
var (
	// ErrNotFound indicates the run has no snapshots.
	ErrNotFound = errors.New("checkpoint: snapshot not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint: store closed")
)

package spangraph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spangraph/spangraph/pkg/spangraph/checkpoint"
)

// Resume continues a run from its latest snapshot in store.
// The snapshot's NextNode becomes the starting node; a snapshot whose
// NextNode is END returns the stored state immediately.
//
// Resume carries the same options as Run. Pass WithSnapshots(store) again to
// keep snapshotting the resumed run; the sequence continues after the loaded
// snapshot.
func (cg *CompiledGraph[S]) Resume(ctx Context, store checkpoint.Store, runID string, opts ...RunOption) (S, error) {
	var zero S

	if ctx == nil {
		return zero, ErrNilContext
	}
	if runID == "" {
		return zero, ErrRunIDRequired
	}

	snap, err := store.Latest(runID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return zero, fmt.Errorf("%w: %s", ErrNoSnapshots, runID)
	}
	if err != nil {
		return zero, &SnapshotError{NodeID: "", Op: "load", Err: err}
	}

	var state S
	if err := json.Unmarshal(snap.State, &state); err != nil {
		return zero, &SnapshotError{NodeID: snap.NodeID, Op: "deserialize", Err: err}
	}

	if snap.NextNode == END {
		return state, nil
	}
	if !cg.HasNode(snap.NextNode) {
		return state, fmt.Errorf("%w: %s", ErrInvalidResumeNode, snap.NextNode)
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.runID = runID
	cfg.sequence = snap.Sequence

	result, _, err := cg.runLoop(ctx, ctx, state, snap.NextNode, &cfg, nil)
	return result, err
}

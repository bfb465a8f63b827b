package spangraph

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/spangraph/spangraph/pkg/spangraph/checkpoint"
	"github.com/spangraph/spangraph/pkg/spangraph/observability"
)

// Run executes the graph with the given initial state.
// Returns the final state and any error encountered.
//
// On success, returns the state after the last node executed before END.
// On error, returns the state at the point of failure.
//
// Execution flow:
//  1. Start at the entry point node
//  2. Check for cancellation
//  3. Execute the current node
//  4. Determine the next node (via simple or conditional edge)
//  5. Repeat until END is reached or an error occurs
func (cg *CompiledGraph[S]) Run(ctx Context, state S, opts ...RunOption) (result S, runErr error) {
	if ctx == nil {
		return state, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.snapshotStore != nil && cfg.runID == "" {
		return state, ErrRunIDRequired
	}

	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}

	startTime := time.Now()
	observability.LogRunStart(cfg.logger, runID, "run")

	var execCtx context.Context = ctx
	var runSpan trace.Span
	if cfg.tracingEnabled {
		execCtx, runSpan = cfg.spans.StartRunSpan(ctx, cg.name, runID, "run")
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	var nodeCount int
	result, nodeCount, runErr = cg.runLoop(execCtx, ctx, state, cg.entryPoint, &cfg, nil)

	duration := time.Since(startTime)
	cfg.metrics.RecordGraphRun(ctx, runErr == nil, duration)

	durationMs := float64(duration.Milliseconds())
	if runErr != nil {
		observability.LogRunError(cfg.logger, runID, runErr, durationMs, lastNodeOf(runErr))
	} else {
		observability.LogRunComplete(cfg.logger, runID, durationMs, nodeCount)
	}

	return result, runErr
}

// lastNodeOf extracts the failing node ID from execution errors, if present.
func lastNodeOf(err error) string {
	switch e := err.(type) {
	case *NodeError:
		return e.NodeID
	case *MaxIterationsError:
		return e.LastNodeID
	case *CancellationError:
		return e.NodeID
	}
	return ""
}

// runLoop executes the graph from startNode until END.
// tracingCtx carries span context; gctx is the graph Context.
// emit, when non-nil, is called after each node with the node ID and state;
// a false return aborts the run (the stream consumer went away).
func (cg *CompiledGraph[S]) runLoop(
	tracingCtx context.Context,
	gctx Context,
	state S,
	startNode string,
	cfg *runConfig,
	emit func(nodeID string, state S) bool,
) (S, int, error) {
	current := startNode
	iterations := 0
	nodeCount := 0

	for current != END {
		iterations++
		if iterations > cfg.maxIterations {
			return state, nodeCount, &MaxIterationsError{
				Max:        cfg.maxIterations,
				LastNodeID: current,
				State:      state,
			}
		}

		// Check for cancellation before executing the node
		select {
		case <-gctx.Done():
			return state, nodeCount, &CancellationError{
				NodeID:       current,
				State:        state,
				Cause:        gctx.Err(),
				WasExecuting: false,
			}
		default:
		}

		observability.LogNodeStart(cfg.logger, current)

		nodeTracingCtx := tracingCtx
		var nodeSpan trace.Span
		if cfg.tracingEnabled {
			nodeTracingCtx, nodeSpan = cfg.spans.StartNodeSpan(tracingCtx, current)
		}

		nodeStart := time.Now()

		var nodeErr error
		state, nodeErr = cg.executeNode(gctx, current, state)

		nodeDuration := time.Since(nodeStart)
		cfg.metrics.RecordNodeExecution(nodeTracingCtx, current, nodeDuration, nodeErr)

		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(nodeSpan, nodeErr)
		}

		if nodeErr != nil {
			observability.LogNodeError(cfg.logger, current, nodeErr)
			return state, nodeCount, nodeErr
		}
		observability.LogNodeComplete(cfg.logger, current, float64(nodeDuration.Milliseconds()))
		nodeCount++

		next, err := cg.nextNode(gctx, state, current)
		if err != nil {
			return state, nodeCount, err
		}

		if cfg.snapshotStore != nil {
			if err := cg.saveSnapshot(gctx, cfg, current, state, next); err != nil {
				return state, nodeCount, err
			}
		}

		if emit != nil && !emit(current, state) {
			cause := gctx.Err()
			if cause == nil {
				cause = context.Canceled
			}
			return state, nodeCount, &CancellationError{
				NodeID:       current,
				State:        state,
				Cause:        cause,
				WasExecuting: false,
			}
		}

		current = next
	}

	return state, nodeCount, nil
}

// saveSnapshot persists state after a node execution. Failures are fatal
// only when configured so; otherwise they are logged and execution continues.
func (cg *CompiledGraph[S]) saveSnapshot(ctx Context, cfg *runConfig, nodeID string, state S, nextNode string) error {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		if cfg.snapshotFatal {
			return &SnapshotError{NodeID: nodeID, Op: "serialize", Err: err}
		}
		observability.LogSnapshotError(cfg.logger, nodeID, "serialize", err)
		return nil
	}

	cfg.sequence++
	snap := checkpoint.Snapshot{
		RunID:     cfg.runID,
		NodeID:    nodeID,
		NextNode:  nextNode,
		Sequence:  cfg.sequence,
		State:     stateBytes,
		CreatedAt: time.Now().UTC(),
	}

	if err := cfg.snapshotStore.Put(snap); err != nil {
		if cfg.snapshotFatal {
			return &SnapshotError{NodeID: nodeID, Op: "save", Err: err}
		}
		observability.LogSnapshotError(cfg.logger, nodeID, "save", err)
		return nil
	}

	observability.LogSnapshot(cfg.logger, nodeID, len(stateBytes))
	cfg.metrics.RecordSnapshot(ctx, nodeID, int64(len(stateBytes)))
	return nil
}

// executeNode executes a single node with panic recovery.
func (cg *CompiledGraph[S]) executeNode(ctx Context, nodeID string, state S) (result S, err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		// Shouldn't happen if compilation was successful
		return state, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("node not found: %s", nodeID),
		}
	}

	nodeCtx := ctx
	if ec, ok := ctx.(*executionContext); ok {
		nodeCtx = ec.withNodeID(nodeID)
	}

	defer func() {
		if r := recover(); r != nil {
			result = state
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	result, err = fn(nodeCtx, state)
	if err != nil {
		return result, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return result, nil
}

// nextNode determines the next node to execute.
// Conditional edges take precedence over simple edges.
func (cg *CompiledGraph[S]) nextNode(ctx Context, state S, current string) (string, error) {
	if router, exists := cg.getRouter(current); exists {
		routerCtx := ctx
		if ec, ok := ctx.(*executionContext); ok {
			routerCtx = ec.withNodeID(current)
		}

		next := router(routerCtx, state)

		if next == "" {
			return "", &RouterError{
				FromNode: current,
				Returned: next,
				Err:      ErrInvalidRouterResult,
			}
		}

		if next != END {
			if _, exists := cg.getNode(next); !exists {
				return "", &RouterError{
					FromNode: current,
					Returned: next,
					Err:      ErrRouterTargetNotFound,
				}
			}
		}

		return next, nil
	}

	edges := cg.getEdges(current)
	if len(edges) == 0 {
		// Shouldn't happen if compilation was successful
		return "", &NodeError{
			NodeID: current,
			Op:     "routing",
			Err:    fmt.Errorf("no outgoing edge from node %s", current),
		}
	}

	// Multiple simple edges from one node are not supported; take the first.
	return edges[0], nil
}

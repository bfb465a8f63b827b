package spangraph

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/spangraph/spangraph/pkg/spangraph/observability"
)

// StreamEvent is one element of the lazy event sequence produced by Stream.
// Exactly one of the following holds per event: a node completed (NodeID and
// State set), the run finished (Final set, State is the final state), or the
// run failed (Err set, no further events follow).
type StreamEvent[S any] struct {
	// NodeID is the node that just completed, or the last node on failure.
	NodeID string
	// State is the graph state after NodeID executed.
	State S
	// Err is the terminal error, if the run failed.
	Err error
	// Final marks the last successful event of the sequence.
	Final bool
}

// Stream executes the graph and emits an event after each node completes,
// then a final event (or an error event) before closing the channel.
//
// The sequence is lazy, finite, and per-call. The run span stays open for the
// full duration of consumption and is closed when the sequence is exhausted
// or the context is cancelled; abandonment via context cancellation closes
// the span with an error status, never leaving it open.
//
// The returned channel is always non-nil and always closed by the producer.
// Setup errors (nil context, missing run ID with snapshots enabled) are
// returned synchronously.
func (cg *CompiledGraph[S]) Stream(ctx Context, state S, opts ...RunOption) (<-chan StreamEvent[S], error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.snapshotStore != nil && cfg.runID == "" {
		return nil, ErrRunIDRequired
	}

	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}

	events := make(chan StreamEvent[S], cfg.streamBuffer)

	go func() {
		defer close(events)

		startTime := time.Now()
		observability.LogRunStart(cfg.logger, runID, "stream")

		var execCtx context.Context = ctx
		var runSpan trace.Span
		if cfg.tracingEnabled {
			execCtx, runSpan = cfg.spans.StartRunSpan(ctx, cg.name, runID, "stream")
		}

		emit := func(nodeID string, s S) bool {
			select {
			case events <- StreamEvent[S]{NodeID: nodeID, State: s}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		result, nodeCount, runErr := cg.runLoop(execCtx, ctx, state, cg.entryPoint, &cfg, emit)

		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}

		duration := time.Since(startTime)
		cfg.metrics.RecordGraphRun(ctx, runErr == nil, duration)

		durationMs := float64(duration.Milliseconds())
		if runErr != nil {
			observability.LogRunError(cfg.logger, runID, runErr, durationMs, lastNodeOf(runErr))
			select {
			case events <- StreamEvent[S]{NodeID: lastNodeOf(runErr), State: result, Err: runErr}:
			case <-ctx.Done():
			}
			return
		}

		observability.LogRunComplete(cfg.logger, runID, durationMs, nodeCount)
		select {
		case events <- StreamEvent[S]{State: result, Final: true}:
		case <-ctx.Done():
		}
	}()

	return events, nil
}

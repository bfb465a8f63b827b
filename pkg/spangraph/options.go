package spangraph

import (
	"log/slog"

	"github.com/spangraph/spangraph/pkg/spangraph/checkpoint"
	"github.com/spangraph/spangraph/pkg/spangraph/observability"
)

// runConfig holds configuration for one graph execution.
type runConfig struct {
	maxIterations int
	runID         string
	streamBuffer  int

	logger         *slog.Logger
	tracingEnabled bool
	spans          observability.SpanManager
	metrics        observability.MetricsRecorder

	snapshotStore checkpoint.Store
	snapshotFatal bool
	sequence      int
}

// defaultRunConfig returns the default execution configuration:
// no logging, no tracing, no metrics, no snapshots, 1000-iteration cap.
func defaultRunConfig() runConfig {
	return runConfig{
		maxIterations: 1000,
		streamBuffer:  16,
		spans:         observability.NoopSpanManager{},
		metrics:       observability.NoopMetrics{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxIterations sets the maximum number of node executions. Default 1000.
// Prevents infinite loops; exceeding the limit returns a MaxIterationsError.
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithRunID sets the run identifier used for snapshots, logs, and spans.
// Required when snapshots are enabled.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithObservabilityLogger enables structured logging of run and node events.
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithTracing enables OTel span creation for the run and each node.
// Spans go to the global tracer provider; with none installed they are no-ops.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithSpanManager overrides the span manager. Implies tracing enabled.
func WithSpanManager(sm observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if sm != nil {
			c.tracingEnabled = true
			c.spans = sm
		}
	}
}

// WithMetrics enables OTel metrics recording.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithSnapshots enables state snapshots after each node, written to store.
// Requires WithRunID.
func WithSnapshots(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.snapshotStore = store
	}
}

// WithSnapshotFailureFatal makes snapshot failures abort the run.
// By default snapshot failures are logged and execution continues.
func WithSnapshotFailureFatal(fatal bool) RunOption {
	return func(c *runConfig) {
		c.snapshotFatal = fatal
	}
}

// WithStreamBuffer sets the event channel buffer used by Stream. Default 16.
func WithStreamBuffer(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.streamBuffer = n
		}
	}
}

package spangraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/spangraph/spangraph/pkg/spangraph/checkpoint"
	"github.com/spangraph/spangraph/pkg/spangraph/model"
	"github.com/spangraph/spangraph/pkg/spangraph/observability"
)

// Context provides execution context to nodes. It extends context.Context
// with graph-specific services and metadata.
//
// Context is immutable after creation. The executor creates derived contexts
// per node with updated NodeID and an enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run and node
	// context during execution. Never nil; defaults to slog.Default().
	Logger() *slog.Logger

	// Model returns the chat-completion client, or nil if not configured.
	// Nodes should check for nil before using.
	Model() model.Client

	// Snapshots returns the snapshot store, or nil if not configured.
	Snapshots() checkpoint.Store

	// RunID returns the unique identifier for this execution run.
	// Auto-generated if not configured.
	RunID() string

	// NodeID returns the current node being executed.
	// Empty string before execution starts.
	NodeID() string

	// Attempt returns the retry attempt number (1 = first attempt).
	Attempt() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger    *slog.Logger
	client    model.Client
	snapshots checkpoint.Store
	runID     string
	nodeID    string
	attempt   int
}

func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

func (c *executionContext) Model() model.Client {
	return c.client
}

func (c *executionContext) Snapshots() checkpoint.Store {
	return c.snapshots
}

func (c *executionContext) RunID() string {
	return c.runID
}

func (c *executionContext) NodeID() string {
	return c.nodeID
}

func (c *executionContext) Attempt() int {
	return c.attempt
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context. The executor enriches it with
// run_id, node_id, and attempt during execution.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		c.logger = logger
	}
}

// WithModel sets the chat-completion client for the context.
func WithModel(client model.Client) ContextOption {
	return func(c *executionContext) {
		c.client = client
	}
}

// WithSnapshotStore sets the snapshot store available to nodes.
// For snapshotting during execution, use WithSnapshots() as a RunOption.
func WithSnapshotStore(store checkpoint.Store) ContextOption {
	return func(c *executionContext) {
		c.snapshots = store
	}
}

// WithContextRunID sets the run identifier for the context.
// A UUID is auto-generated when unset.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates an execution context from a standard context.
//
// Example:
//
//	ctx := spangraph.NewContext(context.Background(),
//	    spangraph.WithLogger(logger),
//	    spangraph.WithModel(client))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
		attempt: 1,
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// withNodeID returns a derived context with the given node ID set.
func (c *executionContext) withNodeID(nodeID string) *executionContext {
	return &executionContext{
		Context:   c.Context,
		logger:    observability.EnrichLogger(c.logger, c.runID, nodeID, c.attempt),
		client:    c.client,
		snapshots: c.snapshots,
		runID:     c.runID,
		nodeID:    nodeID,
		attempt:   c.attempt,
	}
}

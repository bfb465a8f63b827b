package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/spangraph/spangraph/pkg/spangraph"
	"github.com/spangraph/spangraph/pkg/spangraph/checkpoint"
	"github.com/spangraph/spangraph/pkg/spangraph/model"
)

// ErrNoSnapshotStore indicates Resume was called on an agent built without a
// snapshot store.
var ErrNoSnapshotStore = errors.New("chat: no snapshot store configured")

// nodeRespond is the single node of the chat graph.
const nodeRespond = "respond"

// echoPrefix prefixes the fallback reply produced when no model responds.
const echoPrefix = "Echo: "

// BuildGraph constructs the chat graph: respond, then END. The node reads
// the model client from the execution context and never returns an error;
// model failure is absorbed into the echo fallback so a chat run always
// produces a reply.
func BuildGraph() *spangraph.Graph[State] {
	g := spangraph.NewGraph[State]().Named("chat")
	g.AddNode(nodeRespond, respond)
	g.SetEntry(nodeRespond)
	g.AddEdge(nodeRespond, spangraph.END)
	return g
}

// respond appends the model's reply to the conversation. When the client is
// absent or the completion fails, it appends the echo fallback instead: the
// last user content prefixed with "Echo: ". The conversation always grows by
// exactly one assistant message.
func respond(ctx spangraph.Context, s State) (State, error) {
	client := ctx.Model()
	if client == nil {
		client = model.Disabled()
	}

	resp, err := client.Complete(ctx, model.Request{Messages: s.Messages})
	if err != nil {
		ctx.Logger().Warn("model completion failed, falling back to echo",
			slog.String("error", err.Error()))
		s.Messages = append(s.Messages, model.Message{
			Role:    model.RoleAssistant,
			Content: echoPrefix + s.lastUserContent(),
		})
		return s, nil
	}

	s.Messages = append(s.Messages, resp.Message)
	return s, nil
}

// Agent owns the chat graph and its compiled form. Compilation runs in the
// background behind a single worker slot: construction returns immediately,
// and the first request awaits the slot instead of recompiling.
type Agent struct {
	logger    *slog.Logger
	client    model.Client
	snapshots checkpoint.Store
	runOpts   []spangraph.RunOption

	sem *semaphore.Weighted

	mu       sync.Mutex
	compiled *spangraph.CompiledGraph[State]
	buildErr error
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithLogger sets the agent's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) { a.logger = logger }
}

// WithModel sets the chat-completion client used by the respond node.
func WithModel(client model.Client) AgentOption {
	return func(a *Agent) { a.client = client }
}

// WithSnapshots sets the snapshot store made available to runs.
func WithSnapshots(store checkpoint.Store) AgentOption {
	return func(a *Agent) { a.snapshots = store }
}

// WithRunOptions appends run options applied to every Invoke and Stream.
func WithRunOptions(opts ...spangraph.RunOption) AgentOption {
	return func(a *Agent) { a.runOpts = append(a.runOpts, opts...) }
}

// NewAgent builds the agent and kicks off graph compilation in the
// background. The compile slot is held until compilation finishes; requests
// arriving earlier block on graph() until then.
func NewAgent(opts ...AgentOption) *Agent {
	a := &Agent{
		logger: slog.Default(),
		sem:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(a)
	}

	// Cannot fail: the semaphore is fresh and has a free slot.
	a.sem.TryAcquire(1)
	go func() {
		defer a.sem.Release(1)

		cg, err := BuildGraph().Compile()

		a.mu.Lock()
		a.compiled, a.buildErr = cg, err
		a.mu.Unlock()

		if err != nil {
			a.logger.Error("chat graph compilation failed",
				slog.String("error", err.Error()))
			return
		}
		a.logger.Info("chat graph compiled", slog.String("graph", cg.Name()))
	}()

	return a
}

// graph returns the compiled graph, awaiting the background compilation slot
// when it has not finished yet. ctx bounds the wait.
func (a *Agent) graph(ctx context.Context) (*spangraph.CompiledGraph[State], error) {
	a.mu.Lock()
	cg, err := a.compiled, a.buildErr
	a.mu.Unlock()
	if cg != nil || err != nil {
		return cg, err
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	a.sem.Release(1)

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.compiled, a.buildErr
}

// runIDKey carries a caller-chosen run identifier through a standard context.
type runIDKey struct{}

// WithRunID returns a context that pins the run identifier for calls made
// with it. Without one, each call runs under a freshly generated ID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// execContext builds the per-run graph context.
func (a *Agent) execContext(ctx context.Context) spangraph.Context {
	opts := []spangraph.ContextOption{
		spangraph.WithLogger(a.logger),
		spangraph.WithModel(a.client),
		spangraph.WithSnapshotStore(a.snapshots),
	}
	if id, ok := runIDFrom(ctx); ok {
		opts = append(opts, spangraph.WithContextRunID(id))
	}
	return spangraph.NewContext(ctx, opts...)
}

// callOpts builds the run options for one call. With a store configured, the
// run snapshots under the execution context's run ID, so a caller that pinned
// the ID via WithRunID can resume the run later.
func (a *Agent) callOpts(gctx spangraph.Context) []spangraph.RunOption {
	opts := a.runOpts
	if a.snapshots != nil {
		opts = append(opts[:len(opts):len(opts)],
			spangraph.WithSnapshots(a.snapshots),
			spangraph.WithRunID(gctx.RunID()),
		)
	}
	return opts
}

// Resume continues a snapshotted run from its latest checkpoint and returns
// the final conversation. Completed runs return their stored conversation
// without executing anything.
func (a *Agent) Resume(ctx context.Context, runID string) ([]model.Message, error) {
	if a.snapshots == nil {
		return nil, ErrNoSnapshotStore
	}

	cg, err := a.graph(ctx)
	if err != nil {
		return nil, err
	}

	final, err := cg.Resume(a.execContext(ctx), a.snapshots, runID,
		spangraph.WithSnapshots(a.snapshots))
	if err != nil {
		return nil, err
	}
	return final.Messages, nil
}

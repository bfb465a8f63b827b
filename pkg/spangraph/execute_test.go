package spangraph

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spangraph/spangraph/pkg/spangraph/checkpoint"
)

func compileLinear(t *testing.T, nodeNames ...string) *CompiledGraph[testState] {
	t.Helper()

	g := NewGraph[testState]()
	for _, name := range nodeNames {
		g.AddNode(name, appendStep(name))
	}
	for i := 0; i < len(nodeNames)-1; i++ {
		g.AddEdge(nodeNames[i], nodeNames[i+1])
	}
	g.AddEdge(nodeNames[len(nodeNames)-1], END)
	g.SetEntry(nodeNames[0])

	cg, err := g.Compile()
	require.NoError(t, err)
	return cg
}

func TestRunLinearGraph(t *testing.T) {
	cg := compileLinear(t, "a", "b", "c")

	final, err := cg.Run(NewContext(context.Background()), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, final.Steps)
}

func TestRunNodeLoggerEnriched(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	cg, err := NewGraph[testState]().
		AddNode("a", func(ctx Context, s testState) (testState, error) {
			ctx.Logger().Info("inside node")
			return s, nil
		}).
		AddEdge("a", END).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	gctx := NewContext(context.Background(),
		WithLogger(logger),
		WithContextRunID("run-log"))
	_, err = cg.Run(gctx, testState{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"run_id":"run-log"`)
	assert.Contains(t, out, `"node_id":"a"`)
	assert.Contains(t, out, `"attempt":1`)
}

func TestRunNilContext(t *testing.T) {
	cg := compileLinear(t, "a")

	_, err := cg.Run(nil, testState{})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestRunNodeErrorWrapped(t *testing.T) {
	sentinel := errors.New("downstream unavailable")
	cg, err := NewGraph[testState]().
		AddNode("a", appendStep("a")).
		AddNode("fail", func(ctx Context, s testState) (testState, error) {
			return s, sentinel
		}).
		AddEdge("a", "fail").
		AddEdge("fail", END).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	state, runErr := cg.Run(NewContext(context.Background()), testState{})
	require.Error(t, runErr)

	var nodeErr *NodeError
	require.ErrorAs(t, runErr, &nodeErr)
	assert.Equal(t, "fail", nodeErr.NodeID)
	assert.ErrorIs(t, runErr, sentinel)

	// State at the point of failure is returned.
	assert.Equal(t, []string{"a"}, state.Steps)
}

func TestRunPanicRecovered(t *testing.T) {
	cg, err := NewGraph[testState]().
		AddNode("boom", func(ctx Context, s testState) (testState, error) {
			panic("node exploded")
		}).
		AddEdge("boom", END).
		SetEntry("boom").
		Compile()
	require.NoError(t, err)

	_, runErr := cg.Run(NewContext(context.Background()), testState{})
	require.Error(t, runErr)

	var panicErr *PanicError
	require.ErrorAs(t, runErr, &panicErr)
	assert.Equal(t, "boom", panicErr.NodeID)
	assert.Equal(t, "node exploded", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestRunCancellation(t *testing.T) {
	cg := compileLinear(t, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cg.Run(NewContext(ctx), testState{})
	require.Error(t, err)

	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunMaxIterations(t *testing.T) {
	cg, err := NewGraph[testState]().
		AddNode("loop", func(ctx Context, s testState) (testState, error) {
			s.Count++
			return s, nil
		}).
		AddConditionalEdge("loop", func(ctx Context, s testState) string {
			return "loop" // never terminates
		}).
		SetEntry("loop").
		Compile()
	require.NoError(t, err)

	_, runErr := cg.Run(NewContext(context.Background()), testState{}, WithMaxIterations(5))
	require.Error(t, runErr)

	var maxErr *MaxIterationsError
	require.ErrorAs(t, runErr, &maxErr)
	assert.Equal(t, 5, maxErr.Max)
	assert.ErrorIs(t, runErr, ErrMaxIterations)
}

func TestRunConditionalRouting(t *testing.T) {
	cg, err := NewGraph[testState]().
		AddNode("loop", func(ctx Context, s testState) (testState, error) {
			s.Count++
			return s, nil
		}).
		AddNode("finish", appendStep("finish")).
		AddConditionalEdge("loop", func(ctx Context, s testState) string {
			if s.Count >= 3 {
				return "finish"
			}
			return "loop"
		}).
		AddEdge("finish", END).
		SetEntry("loop").
		Compile()
	require.NoError(t, err)

	final, runErr := cg.Run(NewContext(context.Background()), testState{})
	require.NoError(t, runErr)
	assert.Equal(t, 3, final.Count)
	assert.Equal(t, []string{"finish"}, final.Steps)
}

func TestRunRouterEmptyResult(t *testing.T) {
	cg, err := NewGraph[testState]().
		AddNode("a", appendStep("a")).
		AddConditionalEdge("a", func(ctx Context, s testState) string {
			return ""
		}).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	_, runErr := cg.Run(NewContext(context.Background()), testState{})
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, ErrInvalidRouterResult)
}

func TestRunRouterUnknownTarget(t *testing.T) {
	cg, err := NewGraph[testState]().
		AddNode("a", appendStep("a")).
		AddConditionalEdge("a", func(ctx Context, s testState) string {
			return "ghost"
		}).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	_, runErr := cg.Run(NewContext(context.Background()), testState{})
	require.Error(t, runErr)

	var routerErr *RouterError
	require.ErrorAs(t, runErr, &routerErr)
	assert.Equal(t, "ghost", routerErr.Returned)
	assert.ErrorIs(t, runErr, ErrRouterTargetNotFound)
}

func TestRunSnapshotsRequireRunID(t *testing.T) {
	cg := compileLinear(t, "a")
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	_, err := cg.Run(NewContext(context.Background()), testState{}, WithSnapshots(store))
	assert.ErrorIs(t, err, ErrRunIDRequired)
}

func TestRunRecordsSnapshots(t *testing.T) {
	cg := compileLinear(t, "a", "b")
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	_, err := cg.Run(NewContext(context.Background()), testState{},
		WithRunID("run-1"),
		WithSnapshots(store),
	)
	require.NoError(t, err)

	history, err := store.History("run-1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "a", history[0].NodeID)
	assert.Equal(t, "b", history[0].NextNode)
	assert.Equal(t, 1, history[0].Sequence)

	assert.Equal(t, "b", history[1].NodeID)
	assert.Equal(t, END, history[1].NextNode)
	assert.Equal(t, 2, history[1].Sequence)
}

func TestRunSnapshotFailureNonFatalByDefault(t *testing.T) {
	cg := compileLinear(t, "a")
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Close()) // every Put now fails

	final, err := cg.Run(NewContext(context.Background()), testState{},
		WithRunID("run-1"),
		WithSnapshots(store),
	)
	require.NoError(t, err, "snapshot failures are logged, not fatal, by default")
	assert.Equal(t, []string{"a"}, final.Steps)
}

func TestRunSnapshotFailureFatalWhenConfigured(t *testing.T) {
	cg := compileLinear(t, "a")
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Close())

	_, err := cg.Run(NewContext(context.Background()), testState{},
		WithRunID("run-1"),
		WithSnapshots(store),
		WithSnapshotFailureFatal(true),
	)
	require.Error(t, err)

	var snapErr *SnapshotError
	require.ErrorAs(t, err, &snapErr)
	assert.Equal(t, "save", snapErr.Op)
	assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
}

func TestRunContextExposesNodeID(t *testing.T) {
	var seen []string
	cg, err := NewGraph[testState]().
		AddNode("observe", func(ctx Context, s testState) (testState, error) {
			seen = append(seen, ctx.NodeID())
			return s, nil
		}).
		AddEdge("observe", END).
		SetEntry("observe").
		Compile()
	require.NoError(t, err)

	_, runErr := cg.Run(NewContext(context.Background()), testState{})
	require.NoError(t, runErr)
	assert.Equal(t, []string{"observe"}, seen)
}

func TestRunGeneratesRunID(t *testing.T) {
	ctx := NewContext(context.Background())
	assert.NotEmpty(t, ctx.RunID())

	other := NewContext(context.Background())
	assert.NotEqual(t, ctx.RunID(), other.RunID())
}

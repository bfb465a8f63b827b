package spangraph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spangraph/spangraph/pkg/spangraph/checkpoint"
)

func collectEvents(t *testing.T, events <-chan StreamEvent[testState]) []StreamEvent[testState] {
	t.Helper()

	var got []StreamEvent[testState]
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("stream did not complete")
		}
	}
}

func TestStreamEmitsPerNodeThenFinal(t *testing.T) {
	cg := compileLinear(t, "a", "b", "c")

	events, err := cg.Stream(NewContext(context.Background()), testState{})
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 4)

	assert.Equal(t, "a", got[0].NodeID)
	assert.Equal(t, []string{"a"}, got[0].State.Steps)
	assert.Equal(t, "b", got[1].NodeID)
	assert.Equal(t, "c", got[2].NodeID)

	final := got[3]
	assert.True(t, final.Final)
	assert.NoError(t, final.Err)
	assert.Equal(t, []string{"a", "b", "c"}, final.State.Steps)
}

func TestStreamNilContext(t *testing.T) {
	cg := compileLinear(t, "a")

	events, err := cg.Stream(nil, testState{})
	assert.ErrorIs(t, err, ErrNilContext)
	assert.Nil(t, events)
}

func TestStreamErrorIsTerminalEvent(t *testing.T) {
	sentinel := errors.New("node failed")
	cg, err := NewGraph[testState]().
		AddNode("ok", appendStep("ok")).
		AddNode("fail", func(ctx Context, s testState) (testState, error) {
			return s, sentinel
		}).
		AddEdge("ok", "fail").
		AddEdge("fail", END).
		SetEntry("ok").
		Compile()
	require.NoError(t, err)

	events, streamErr := cg.Stream(NewContext(context.Background()), testState{})
	require.NoError(t, streamErr)

	got := collectEvents(t, events)
	require.Len(t, got, 2)

	assert.Equal(t, "ok", got[0].NodeID)
	require.Error(t, got[1].Err)
	assert.ErrorIs(t, got[1].Err, sentinel)
	assert.Equal(t, "fail", got[1].NodeID)
	assert.False(t, got[1].Final)
}

func TestStreamCancellationClosesChannel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	cg, err := NewGraph[testState]().
		AddNode("slow", func(ctx Context, s testState) (testState, error) {
			close(started)
			<-release
			return s, nil
		}).
		AddNode("next", appendStep("next")).
		AddEdge("slow", "next").
		AddEdge("next", END).
		SetEntry("slow").
		Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events, streamErr := cg.Stream(NewContext(ctx), testState{})
	require.NoError(t, streamErr)

	<-started
	cancel()
	close(release)

	// The channel must close promptly; whether the cancellation error event
	// still lands before the consumer's context loses the race is timing
	// dependent, so only its content is asserted, not its presence.
	got := collectEvents(t, events)
	for _, ev := range got {
		if ev.Err != nil {
			assert.ErrorIs(t, ev.Err, context.Canceled)
		}
		assert.False(t, ev.Final, "a cancelled run must not produce a final event")
	}
}

func TestStreamChannelAlwaysCloses(t *testing.T) {
	cg := compileLinear(t, "a")

	events, err := cg.Stream(NewContext(context.Background()), testState{})
	require.NoError(t, err)

	collectEvents(t, events)

	// A closed channel yields immediately.
	_, open := <-events
	assert.False(t, open)
}

func TestStreamSnapshotsRequireRunID(t *testing.T) {
	cg := compileLinear(t, "a")

	store := checkpoint.NewMemoryStore()
	defer store.Close()

	_, err := cg.Stream(NewContext(context.Background()), testState{},
		WithSnapshots(store))
	assert.ErrorIs(t, err, ErrRunIDRequired)
}

package chat

import (
	"context"

	"github.com/spangraph/spangraph/pkg/spangraph/instrument"
	"github.com/spangraph/spangraph/pkg/spangraph/model"
)

// Delta is one element of the streamed response sequence: the conversation
// after a node completed, a terminal Final element, or a terminal Err.
type Delta struct {
	NodeID   string
	Messages []model.Message
	Err      error
	Final    bool
}

// Handle is the caller-facing surface of the chat agent. Implementations are
// safe for concurrent use.
type Handle interface {
	// Invoke runs the conversation through the graph and returns the full
	// message list, grown by the assistant's reply.
	Invoke(ctx context.Context, msgs []model.Message) ([]model.Message, error)

	// Stream runs the conversation and emits a Delta per completed node,
	// then a Final delta. The channel is always closed by the producer.
	Stream(ctx context.Context, msgs []model.Message) (<-chan Delta, error)
}

// Invoke implements Handle.
func (a *Agent) Invoke(ctx context.Context, msgs []model.Message) ([]model.Message, error) {
	cg, err := a.graph(ctx)
	if err != nil {
		return nil, err
	}

	gctx := a.execContext(ctx)
	final, err := cg.Run(gctx, State{Messages: msgs}, a.callOpts(gctx)...)
	if err != nil {
		return nil, err
	}
	return final.Messages, nil
}

// Stream implements Handle.
func (a *Agent) Stream(ctx context.Context, msgs []model.Message) (<-chan Delta, error) {
	cg, err := a.graph(ctx)
	if err != nil {
		return nil, err
	}

	gctx := a.execContext(ctx)
	events, err := cg.Stream(gctx, State{Messages: msgs}, a.callOpts(gctx)...)
	if err != nil {
		return nil, err
	}

	deltas := make(chan Delta)
	go func() {
		defer close(deltas)
		for ev := range events {
			deltas <- Delta{
				NodeID:   ev.NodeID,
				Messages: ev.State.Messages,
				Err:      ev.Err,
				Final:    ev.Final,
			}
		}
	}()
	return deltas, nil
}

var _ Handle = (*Agent)(nil)

// tracedHandle overlays spans on another Handle by delegation. Inputs,
// outputs, and errors pass through unchanged.
type tracedHandle struct {
	invoke func(context.Context, []model.Message) ([]model.Message, error)
	stream func(context.Context, []model.Message) (<-chan Delta, error)
}

// Traced wraps a Handle so each Invoke runs inside an "agent.invoke" span and
// each Stream keeps an "agent.stream" span open until the delta sequence is
// consumed. With no tracer provider installed the wrappers are no-ops, so a
// traced handle behaves identically to the bare one.
func Traced(h Handle) Handle {
	return tracedHandle{
		invoke: instrument.Wrap(h.Invoke, "agent.invoke", "agent"),
		stream: instrument.WrapStream(h.Stream, "agent.stream", "agent"),
	}
}

func (t tracedHandle) Invoke(ctx context.Context, msgs []model.Message) ([]model.Message, error) {
	return t.invoke(ctx, msgs)
}

func (t tracedHandle) Stream(ctx context.Context, msgs []model.Message) (<-chan Delta, error) {
	return t.stream(ctx, msgs)
}

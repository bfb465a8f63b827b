package model

import (
	"context"

	"github.com/spangraph/spangraph/pkg/spangraph/instrument"
)

// tracedClient overlays a span on every completion call by delegation.
type tracedClient struct {
	inner    Client
	complete func(context.Context, Request) (Response, error)
}

// Traced wraps a Client so each Complete call runs inside a "model.complete"
// span. Requests, responses, and errors pass through unchanged; with no
// tracer provider installed the wrapper is a no-op.
func Traced(c Client) Client {
	if c == nil {
		return nil
	}
	return tracedClient{
		inner:    c,
		complete: instrument.Wrap(c.Complete, "model.complete", "model"),
	}
}

func (t tracedClient) Complete(ctx context.Context, req Request) (Response, error) {
	return t.complete(ctx, req)
}

func (t tracedClient) Info() Info {
	return t.inner.Info()
}

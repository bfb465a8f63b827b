// Package instrument is the manual re-instrumentation layer: explicit span
// wrappers for the call sites that automatic instrumentation would have
// covered had it not been disabled via the hookshim.
//
// Wrappers are side-effect-only overlays. They never alter the inputs,
// outputs, or error behavior of the callable they wrap, and every tracing
// call degrades to a no-op when no tracer provider was installed.
package instrument

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer resolves spans through the global provider, which is a no-op
// provider until telemetry.Init installs a real one.
var tracer = otel.Tracer("spangraph/instrument")

// groupKey tags every wrapped span with its call-site category.
const groupKey = attribute.Key("instrument.group")

// Wrap returns a callable with the same signature and behavior as fn, except
// that each invocation also runs inside a span named spanName and tagged with
// group. The span records success or failure (with the error description)
// and is closed exactly once on every exit path, including panics. Errors
// from fn propagate unchanged.
//
// A nil fn is returned as-is; instrumentation is never a precondition for
// the business logic executing.
func Wrap[I, O any](fn func(context.Context, I) (O, error), spanName, group string) func(context.Context, I) (O, error) {
	if fn == nil {
		return fn
	}
	return func(ctx context.Context, in I) (out O, err error) {
		ctx, span := tracer.Start(ctx, spanName,
			trace.WithAttributes(groupKey.String(group)),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer func() { endSpan(span, err) }()

		out, err = fn(ctx, in)
		return out, err
	}
}

// WrapStream returns a callable producing the same lazy event sequence as
// fn, with a span that stays open for the full duration of consumption. The
// span closes when the inner sequence is exhausted, or with an error status
// when fn fails synchronously or ctx is cancelled while the sequence is
// still live. The elements themselves pass through untouched.
func WrapStream[I, E any](fn func(context.Context, I) (<-chan E, error), spanName, group string) func(context.Context, I) (<-chan E, error) {
	if fn == nil {
		return fn
	}
	return func(ctx context.Context, in I) (<-chan E, error) {
		ctx, span := tracer.Start(ctx, spanName,
			trace.WithAttributes(groupKey.String(group)),
			trace.WithSpanKind(trace.SpanKindInternal),
		)

		inner, err := fn(ctx, in)
		if err != nil {
			endSpan(span, err)
			return inner, err
		}

		out := make(chan E)
		go func() {
			defer close(out)
			for {
				select {
				case ev, ok := <-inner:
					if !ok {
						endSpan(span, nil)
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						endSpan(span, ctx.Err())
						return
					}
				case <-ctx.Done():
					endSpan(span, ctx.Err())
					return
				}
			}
		}()
		return out, nil
	}
}

// endSpan closes a span with the outcome recorded. Safe on no-op spans.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

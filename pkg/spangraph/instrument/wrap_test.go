package instrument

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// The in-memory exporter is installed as the global provider exactly once
// for the whole test binary: the package-level tracer binds to the global
// delegate at init, and that delegate only forwards to the first provider
// ever set, so swapping providers per test would disconnect later tests.
var (
	exporterOnce   sync.Once
	sharedExporter *tracetest.InMemoryExporter
)

// newExporter returns the shared in-memory exporter, emptied of any spans
// recorded by earlier tests.
func newExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporterOnce.Do(func() {
		sharedExporter = tracetest.NewInMemoryExporter()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(sharedExporter),
		))
	})
	sharedExporter.Reset()
	return sharedExporter
}

func findSpan(t *testing.T, exporter *tracetest.InMemoryExporter, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range exporter.GetSpans() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("span %q not exported", name)
	return tracetest.SpanStub{}
}

func TestWrapSuccess(t *testing.T) {
	exporter := newExporter(t)

	fn := func(ctx context.Context, in int) (int, error) {
		return in * 2, nil
	}
	wrapped := Wrap(fn, "math.double", "math")

	out, err := wrapped(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	span := findSpan(t, exporter, "math.double")
	assert.Equal(t, codes.Ok, span.Status.Code)

	var foundGroup bool
	for _, attr := range span.Attributes {
		if attr.Key == groupKey {
			foundGroup = true
			assert.Equal(t, "math", attr.Value.AsString())
		}
	}
	assert.True(t, foundGroup, "span must carry the group attribute")
}

func TestWrapErrorPassesThroughUnchanged(t *testing.T) {
	exporter := newExporter(t)

	sentinel := errors.New("backend exploded")
	fn := func(ctx context.Context, in string) (string, error) {
		return "partial", sentinel
	}
	wrapped := Wrap(fn, "op.fail", "ops")

	out, err := wrapped(context.Background(), "in")

	// The wrapper must not suppress, replace, or wrap the error, and must
	// return the inner value as-is.
	require.Same(t, sentinel, err)
	assert.Equal(t, "partial", out)

	span := findSpan(t, exporter, "op.fail")
	assert.Equal(t, codes.Error, span.Status.Code)
	require.NotEmpty(t, span.Events)
	assert.Equal(t, "exception", span.Events[0].Name)
}

func TestWrapIdenticalBehaviorToBareCall(t *testing.T) {
	newExporter(t)

	fn := func(ctx context.Context, in []string) ([]string, error) {
		out := append([]string(nil), in...)
		return append(out, "done"), nil
	}

	bare, err1 := fn(context.Background(), []string{"a"})
	wrapped, err2 := Wrap(fn, "op", "g")(context.Background(), []string{"a"})

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, bare, wrapped)
}

func TestWrapClosesSpanOnPanic(t *testing.T) {
	exporter := newExporter(t)

	fn := func(ctx context.Context, in int) (int, error) {
		panic("node exploded")
	}
	wrapped := Wrap(fn, "op.panic", "ops")

	assert.Panics(t, func() {
		_, _ = wrapped(context.Background(), 1)
	})

	span := findSpan(t, exporter, "op.panic")
	assert.False(t, span.EndTime.IsZero(), "span must be ended even when fn panics")
}

func TestWrapNilFunc(t *testing.T) {
	var fn func(context.Context, int) (int, error)
	assert.Nil(t, Wrap(fn, "op", "g"))
}

func TestWrapStreamExhaustion(t *testing.T) {
	exporter := newExporter(t)

	fn := func(ctx context.Context, n int) (<-chan int, error) {
		ch := make(chan int)
		go func() {
			defer close(ch)
			for i := 0; i < n; i++ {
				ch <- i
			}
		}()
		return ch, nil
	}
	wrapped := WrapStream(fn, "stream.count", "stream")

	ch, err := wrapped(context.Background(), 3)
	require.NoError(t, err)

	var got []int
	for v := range ch {
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2}, got, "elements pass through untouched")

	span := findSpan(t, exporter, "stream.count")
	assert.Equal(t, codes.Ok, span.Status.Code)
	assert.False(t, span.EndTime.IsZero())
}

func TestWrapStreamSyncError(t *testing.T) {
	exporter := newExporter(t)

	sentinel := errors.New("no stream for you")
	fn := func(ctx context.Context, n int) (<-chan int, error) {
		return nil, sentinel
	}
	wrapped := WrapStream(fn, "stream.fail", "stream")

	ch, err := wrapped(context.Background(), 1)
	require.ErrorIs(t, err, sentinel)
	assert.Nil(t, ch)

	span := findSpan(t, exporter, "stream.fail")
	assert.Equal(t, codes.Error, span.Status.Code)
}

func TestWrapStreamCancellation(t *testing.T) {
	exporter := newExporter(t)

	fn := func(ctx context.Context, n int) (<-chan int, error) {
		return make(chan int), nil // never produces, never closes
	}
	wrapped := WrapStream(fn, "stream.stall", "stream")

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := wrapped(ctx, 1)
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open, "output channel must close after cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("output channel not closed after cancellation")
	}

	span := findSpan(t, exporter, "stream.stall")
	assert.Equal(t, codes.Error, span.Status.Code)
	assert.False(t, span.EndTime.IsZero(), "abandoned stream must not leak its span")
}

func TestWrapStreamNilFunc(t *testing.T) {
	var fn func(context.Context, int) (<-chan int, error)
	assert.Nil(t, WrapStream(fn, "op", "g"))
}

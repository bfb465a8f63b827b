package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
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

// installExporter returns the shared in-memory exporter, emptied of any
// spans recorded by earlier tests.
func installExporter(t *testing.T) *tracetest.InMemoryExporter {
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

func TestSpanManagerRunSpan(t *testing.T) {
	exporter := installExporter(t)
	sm := NewSpanManager()

	_, span := sm.StartRunSpan(context.Background(), "chat", "run-1", "run")
	sm.EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "spangraph.run", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "chat", attrs["graph.name"].AsString())
	assert.Equal(t, "run-1", attrs["run.id"].AsString())
}

func TestSpanManagerStreamOp(t *testing.T) {
	exporter := installExporter(t)
	sm := NewSpanManager()

	_, span := sm.StartRunSpan(context.Background(), "chat", "run-1", "stream")
	sm.EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "spangraph.stream", spans[0].Name)
}

func TestSpanManagerNodeSpan(t *testing.T) {
	exporter := installExporter(t)
	sm := NewSpanManager()

	ctx, runSpan := sm.StartRunSpan(context.Background(), "chat", "run-1", "run")
	_, nodeSpan := sm.StartNodeSpan(ctx, "respond")
	sm.EndSpanWithError(nodeSpan, nil)
	sm.EndSpanWithError(runSpan, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "spangraph.node.respond", spans[0].Name)

	// The node span is a child of the run span.
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestEndSpanWithErrorRecordsError(t *testing.T) {
	exporter := installExporter(t)
	sm := NewSpanManager()

	_, span := sm.StartRunSpan(context.Background(), "chat", "run-1", "run")
	sm.EndSpanWithError(span, errors.New("node failed"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "node failed", spans[0].Status.Description)
	require.NotEmpty(t, spans[0].Events)
}

func TestEndSpanWithErrorNilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		EndSpanWithError(nil, errors.New("x"))
		EndSpanWithError(nil, nil)
	})
}

func TestNoopImplementationsAreSafe(t *testing.T) {
	var sm SpanManager = NoopSpanManager{}
	var mr MetricsRecorder = NoopMetrics{}

	ctx, span := sm.StartRunSpan(context.Background(), "g", "r", "run")
	require.NotNil(t, ctx)
	sm.AddSpanEvent(ctx, "event")
	sm.EndSpanWithError(span, errors.New("ignored"))

	_, nodeSpan := sm.StartNodeSpan(ctx, "n")
	sm.EndSpanWithError(nodeSpan, nil)

	assert.NotPanics(t, func() {
		mr.RecordNodeExecution(ctx, "n", 0, nil)
		mr.RecordGraphRun(ctx, true, 0)
		mr.RecordSnapshot(ctx, "n", 0)
	})
}

func TestEnrichLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	EnrichLogger(logger, "run-1", "respond", 2).Info("hello")

	out := buf.String()
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"node_id":"respond"`)
	assert.Contains(t, out, `"attempt":2`)
}

func TestEnrichLoggerNilLogger(t *testing.T) {
	assert.Nil(t, EnrichLogger(nil, "run-1", "n", 1))
}

func TestLogHelpersEmitStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogRunStart(logger, "run-1", "run")
	LogNodeStart(logger, "respond")
	LogNodeComplete(logger, "respond", 12.5)
	LogRunComplete(logger, "run-1", 20.0, 1)

	out := buf.String()
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"node_id":"respond"`)
}

func TestLogHelpersNilLoggerSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		LogRunStart(nil, "run-1", "run")
		LogRunComplete(nil, "run-1", 1, 1)
		LogRunError(nil, "run-1", errors.New("x"), 1, "n")
		LogNodeStart(nil, "n")
		LogNodeComplete(nil, "n", 1)
		LogNodeError(nil, "n", errors.New("x"))
		LogSnapshot(nil, "n", 1)
		LogSnapshotError(nil, "n", "save", errors.New("x"))
	})
}

// Package spangraph is a small graph execution engine for LLM agent
// workflows, instrumented end to end with OpenTelemetry.
//
// # Building a graph
//
// Construct a Graph with typed state, add nodes and edges, then compile:
//
//	type ChatState struct {
//	    Messages []model.Message
//	}
//
//	graph := spangraph.NewGraph[ChatState]().
//	    AddNode("respond", respond).
//	    AddEdge("respond", spangraph.END).
//	    SetEntry("respond")
//
//	compiled, err := graph.Compile()
//
// Compile validates the graph (entry point set, edges resolve, a path to END
// exists) and returns an immutable CompiledGraph safe for concurrent use.
//
// # Running
//
//	ctx := spangraph.NewContext(context.Background(),
//	    spangraph.WithModel(client))
//	final, err := compiled.Run(ctx, initial,
//	    spangraph.WithTracing(true))
//
// Stream produces a lazy per-call sequence of events instead of a single
// final state; the run's trace span covers the whole consumption.
//
// # Observability
//
// Tracing, metrics, and structured logging are opt-in per run and degrade to
// no-ops when the corresponding backend is not configured. See the
// observability, instrument, and telemetry subpackages.
package spangraph

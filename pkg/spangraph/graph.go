package spangraph

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is a mutable builder for execution graphs. Use NewGraph to create
// one, then chain AddNode, AddEdge, and SetEntry calls.
//
// Graph is NOT thread-safe during building. Construct it from a single
// goroutine, then Compile() into an immutable CompiledGraph that can be
// shared freely.
//
// Example:
//
//	graph := spangraph.NewGraph[ChatState]().
//	    AddNode("respond", respondNode).
//	    AddEdge("respond", spangraph.END).
//	    SetEntry("respond")
//
//	compiled, err := graph.Compile()
type Graph[S any] struct {
	mu               sync.RWMutex
	name             string
	nodes            map[string]NodeFunc[S]
	edges            map[string][]string
	conditionalEdges map[string]RouterFunc[S]
	entryPoint       string
}

// NewGraph creates a new graph builder for state type S.
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		name:             "spangraph",
		nodes:            make(map[string]NodeFunc[S]),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]RouterFunc[S]),
	}
}

// Named sets the graph name used in spans and logs.
// Returns the graph for method chaining.
func (g *Graph[S]) Named(name string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if name != "" {
		g.name = name
	}
	return g
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty, reserved ("END"/"__end__", case-insensitive), or
//     contains whitespace
//   - fn is nil
//   - id already exists in the graph
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	if id == "" {
		panic("spangraph: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == "__end__" {
		panic("spangraph: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("spangraph: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("spangraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("spangraph: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	return g
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or spangraph.END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here, so edges can be added
// in any order.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a conditional edge where a RouterFunc determines
// the next node at runtime based on state.
// Returns the graph for method chaining.
//
// A node can have either simple edges or a conditional edge, not both.
// If both are present, the conditional edge takes precedence.
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S]) *Graph[S] {
	if router == nil {
		panic("spangraph: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.conditionalEdges[from] = router
	return g
}

// SetEntry designates the entry point node. Must be called before Compile().
// Returns the graph for method chaining.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}

package spangraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Steps []string `json:"steps"`
	Count int      `json:"count"`
}

func appendStep(name string) NodeFunc[testState] {
	return func(ctx Context, s testState) (testState, error) {
		s.Steps = append(s.Steps, name)
		return s, nil
	}
}

func TestAddNodePanics(t *testing.T) {
	tests := []struct {
		name string
		id   string
		fn   NodeFunc[testState]
	}{
		{"empty id", "", appendStep("x")},
		{"reserved END", "END", appendStep("x")},
		{"reserved end marker", "__end__", appendStep("x")},
		{"reserved mixed case", "End", appendStep("x")},
		{"whitespace", "two words", appendStep("x")},
		{"tab", "a\tb", appendStep("x")},
		{"nil func", "ok", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph[testState]()
			assert.Panics(t, func() {
				g.AddNode(tt.id, tt.fn)
			})
		})
	}
}

func TestAddNodeDuplicatePanics(t *testing.T) {
	g := NewGraph[testState]().AddNode("a", appendStep("a"))
	assert.Panics(t, func() {
		g.AddNode("a", appendStep("a"))
	})
}

func TestAddConditionalEdgeNilRouterPanics(t *testing.T) {
	g := NewGraph[testState]().AddNode("a", appendStep("a"))
	assert.Panics(t, func() {
		g.AddConditionalEdge("a", nil)
	})
}

func TestNamedDefaultsAndOverride(t *testing.T) {
	cg, err := NewGraph[testState]().
		AddNode("a", appendStep("a")).
		AddEdge("a", END).
		SetEntry("a").
		Compile()
	require.NoError(t, err)
	assert.Equal(t, "spangraph", cg.Name())

	named, err := NewGraph[testState]().
		Named("pipeline").
		AddNode("a", appendStep("a")).
		AddEdge("a", END).
		SetEntry("a").
		Compile()
	require.NoError(t, err)
	assert.Equal(t, "pipeline", named.Name())
}

func TestBuilderChaining(t *testing.T) {
	g := NewGraph[testState]()
	assert.Same(t, g, g.AddNode("a", appendStep("a")))
	assert.Same(t, g, g.AddEdge("a", END))
	assert.Same(t, g, g.SetEntry("a"))
	assert.Same(t, g, g.Named("x"))
}

package model

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Client for tests and examples.
// Register canned replies per prompt with AddResponse; unknown prompts get a
// deterministic fallback. Safe for concurrent use.
type Mock struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	calls     int
}

// NewMock constructs an empty Mock.
func NewMock() *Mock {
	return &Mock{responses: make(map[string]string)}
}

// AddResponse registers a canned completion for the given last-message content.
func (m *Mock) AddResponse(prompt, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = reply
}

// FailWith makes every subsequent Complete call return err.
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Complete invocations so far.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Complete implements Client.
func (m *Mock) Complete(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if m.err != nil {
		return Response{}, m.err
	}
	if len(req.Messages) == 0 {
		return Response{}, fmt.Errorf("mock: empty message list")
	}

	last := req.Messages[len(req.Messages)-1]
	reply, ok := m.responses[last.Content]
	if !ok {
		reply = fmt.Sprintf("Mock response to: %s", last.Content)
	}

	return Response{
		Message:      Message{Role: RoleAssistant, Content: reply},
		FinishReason: "stop",
	}, nil
}

// Info implements Client.
func (m *Mock) Info() Info {
	return Info{Name: "mock", Provider: "mock"}
}

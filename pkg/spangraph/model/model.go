// Package model defines the normalized chat-completion interface used by
// graph nodes, plus adapters for concrete providers in subpackages.
package model

import (
	"context"
	"errors"
)

// Message roles. The graph only ever produces assistant messages; user and
// system messages arrive from the caller.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized input for a completion call.
type Request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int64     `json:"max_tokens,omitempty"`
}

// Usage captures token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed assistant turn.
type Response struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Usage        Usage   `json:"usage"`
}

// Info describes a client implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Client is the minimal interface nodes use to drive generation.
// Implementations must honor context cancellation.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Info() Info
}

// ErrNoCredentials indicates no provider credential is configured.
// Callers are expected to degrade (the chat graph echoes), not fail startup.
var ErrNoCredentials = errors.New("model: no provider credentials configured")

// disabledClient fails every call with ErrNoCredentials.
type disabledClient struct{}

// Disabled returns a Client for use when no provider credential is present.
// Every Complete call returns ErrNoCredentials.
func Disabled() Client {
	return disabledClient{}
}

func (disabledClient) Complete(ctx context.Context, req Request) (Response, error) {
	return Response{}, ErrNoCredentials
}

func (disabledClient) Info() Info {
	return Info{Name: "disabled", Provider: "none"}
}

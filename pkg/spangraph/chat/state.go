// Package chat is the conversational agent built on the graph runtime: a
// single respond node that calls the configured chat-completion client and
// degrades to a deterministic echo reply when no model is usable.
package chat

import "github.com/spangraph/spangraph/pkg/spangraph/model"

// State is the graph state for a chat run: the conversation so far. It is
// JSON-serializable so runs can be snapshotted and resumed.
type State struct {
	Messages []model.Message `json:"messages"`
}

// lastUserContent returns the content of the most recent user message,
// or "" when the conversation has none.
func (s State) lastUserContent() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == model.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

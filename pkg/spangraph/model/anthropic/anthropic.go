// Package anthropic adapts the Anthropic Messages API to model.Client.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/spangraph/spangraph/pkg/spangraph/model"
)

// Options configure the Anthropic adapter.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Client wraps the official Anthropic client behind model.Client.
type Client struct {
	client *anthropic.Client
	opts   Options
}

// New creates a Client using the official SDK. When Options.APIKey is empty
// the SDK falls back to ANTHROPIC_API_KEY from the environment.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:       string(anthropic.ModelClaude3_5Sonnet20241022),
		Temperature: 0,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(reqOpts...)

	return &Client{client: &client, opts: opts}
}

// Complete implements model.Client.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.opts.Model),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
		Messages:    buildMessages(req.Messages),
	}
	if system := systemText(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return model.Response{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if tb := block.AsText(); tb.Text != "" {
			text += tb.Text
		}
	}

	return model.Response{
		Message: model.Message{
			Role:    model.RoleAssistant,
			Content: text,
		},
		FinishReason: string(resp.StopReason),
		Usage: model.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// Info implements model.Client.
func (c *Client) Info() model.Info {
	return model.Info{Name: c.opts.Model, Provider: "anthropic"}
}

// buildMessages converts normalized messages to Anthropic turns.
// System messages are hoisted into the request's System field by systemText.
func buildMessages(msgs []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			continue
		case model.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func systemText(msgs []model.Message) string {
	var text string
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			text += m.Content
		}
	}
	return text
}

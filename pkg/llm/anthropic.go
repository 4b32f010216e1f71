package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dskvich/recipe-stream/pkg/domain"
)

const (
	defaultAnthropicURL   = "https://api.anthropic.com"
	defaultAnthropicModel = anthropic.ModelClaudeSonnet4_5_20250929
	anthropicMaxTokens    = 4096
)

type anthropicCompleter struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropic(apiKey, baseURL, model string) (*anthropicCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is empty")
	}
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}

	c := &anthropicCompleter{
		client: anthropic.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
		),
		model: defaultAnthropicModel,
	}
	if model != "" {
		c.model = anthropic.Model(model)
	}
	return c, nil
}

func (c *anthropicCompleter) StreamCompletion(ctx context.Context, req domain.CompletionRequest, onToken func(string) error) error {
	messages, system := toAnthropicMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: anthropicMaxTokens,
	}
	if req.Model != "" {
		params.Model = anthropic.Model(req.Model)
	}
	if len(system) > 0 {
		params.System = system
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		event, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := event.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		if err := onToken(delta.Text); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic streaming: %w", err)
	}
	return nil
}

// toAnthropicMessages moves system messages into the separate system prompt the API expects.
func toAnthropicMessages(msgs []domain.ChatMessage) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))

	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case domain.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out, system
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"

	"github.com/dskvich/recipe-stream/pkg/domain"
)

const defaultOpenAIModel = "gpt-4o-mini"

type openAICompleter struct {
	api   *openai.Client
	model string
}

func NewOpenAI(token, baseURL, model string) (*openAICompleter, error) {
	if token == "" {
		return nil, fmt.Errorf("token is empty")
	}

	cfg := openai.DefaultConfig(token)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &openAICompleter{
		api:   openai.NewClientWithConfig(cfg),
		model: lo.Ternary(model == "", defaultOpenAIModel, model),
	}, nil
}

func (c *openAICompleter) StreamCompletion(ctx context.Context, req domain.CompletionRequest, onToken func(string) error) error {
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: modelOr(req, c.model),
		Messages: lo.Map(req.Messages, func(m domain.ChatMessage, _ int) openai.ChatCompletionMessage {
			return openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
		}),
		Stream: true,
	})
	if err != nil {
		return fmt.Errorf("creating chat completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receiving completion chunk: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onToken(resp.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}

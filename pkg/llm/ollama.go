package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/samber/lo"

	"github.com/dskvich/recipe-stream/pkg/domain"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1:latest"
)

type ollamaCompleter struct {
	client *api.Client
	model  string
}

func NewOllama(baseURL, model string) (*ollamaCompleter, error) {
	parsedURL, err := url.Parse(lo.Ternary(baseURL == "", defaultOllamaURL, baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &ollamaCompleter{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  lo.Ternary(model == "", defaultOllamaModel, model),
	}, nil
}

func (c *ollamaCompleter) StreamCompletion(ctx context.Context, req domain.CompletionRequest, onToken func(string) error) error {
	stream := true
	chatReq := &api.ChatRequest{
		Model: modelOr(req, c.model),
		Messages: lo.Map(req.Messages, func(m domain.ChatMessage, _ int) api.Message {
			return api.Message{Role: string(m.Role), Content: m.Content}
		}),
		Stream: &stream,
	}

	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return onToken(resp.Message.Content)
	})
	if err != nil {
		return fmt.Errorf("streaming ollama chat: %w", err)
	}
	return nil
}

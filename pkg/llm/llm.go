// Package llm adapts hosted and local language model APIs to one streaming interface.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/dskvich/recipe-stream/pkg/domain"
)

const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// Completer streams a completion, calling onToken for every text fragment in order.
// It returns nil once the upstream reports the end of the completion.
// An error returned by onToken aborts the stream and is returned as is.
type Completer interface {
	StreamCompletion(ctx context.Context, req domain.CompletionRequest, onToken func(string) error) error
}

type Config struct {
	Provider        string
	Model           string
	BaseURL         string
	OpenAIToken     string
	AnthropicAPIKey string
}

func New(cfg Config) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIToken, cfg.BaseURL, cfg.Model)
	case ProviderOllama:
		return NewOllama(cfg.BaseURL, cfg.Model)
	case ProviderAnthropic:
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func modelOr(req domain.CompletionRequest, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}

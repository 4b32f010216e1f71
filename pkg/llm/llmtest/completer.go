// Package llmtest provides a scripted llm.Completer for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/dskvich/recipe-stream/pkg/domain"
)

// Completer replays Tokens and then returns Err.
// When Gate is set, each token waits for a receive from it, letting tests pace the stream.
type Completer struct {
	Tokens []string
	Err    error
	Gate   chan struct{}

	mu       sync.Mutex
	requests []domain.CompletionRequest
}

func (c *Completer) StreamCompletion(ctx context.Context, req domain.CompletionRequest, onToken func(string) error) error {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	for _, tok := range c.Tokens {
		if c.Gate != nil {
			select {
			case <-c.Gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return c.Err
}

// Requests returns the completion requests seen so far.
func (c *Completer) Requests() []domain.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.CompletionRequest(nil), c.requests...)
}

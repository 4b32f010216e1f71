package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dskvich/recipe-stream/pkg/domain"
	"github.com/dskvich/recipe-stream/pkg/llm"
	"github.com/dskvich/recipe-stream/pkg/logger"
)

const chunkBufferSize = 64

type MessageFinalizer interface {
	Finalize(ctx context.Context, id, content string, genErr error) error
}

type Extractor interface {
	Extract(ctx context.Context, slug, text string) error
}

// RoundSpec describes one generation round bound to a freshly appended assistant placeholder.
type RoundSpec struct {
	ChatID             string
	AssistantMessageID string
	Type               domain.MessageType
	Slug               string
	Model              string
	Messages           []domain.ChatMessage

	// Persist writes the round's messages. It runs once the chat is reserved and the
	// round does not start if it fails.
	Persist func(ctx context.Context) error
}

// RoundResult is reported once the round has been finalized or has failed to.
type RoundResult struct {
	Text        string
	GenerateErr error
	FinalizeErr error
	State       domain.RoundState
}

// Round is a running generation. Chunks relays tokens to a single consumer;
// Wait reports the outcome.
type Round struct {
	MessageID string

	chunks     chan string
	detached   chan struct{}
	detachOnce sync.Once
	done       chan struct{}
	result     RoundResult
}

// Chunks is closed when the round ends.
func (r *Round) Chunks() <-chan string {
	return r.chunks
}

// Detach stops the relay. Generation and finalization carry on.
func (r *Round) Detach() {
	r.detachOnce.Do(func() { close(r.detached) })
}

func (r *Round) Wait(ctx context.Context) (RoundResult, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return RoundResult{}, ctx.Err()
	}
}

func (r *Round) relay(tok string) {
	select {
	case r.chunks <- tok:
	case <-r.detached:
	}
}

type generationService struct {
	completer         llm.Completer
	messages          MessageFinalizer
	extractor         Extractor
	generationTimeout time.Duration
	finalizeTimeout   time.Duration

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

func NewGenerationService(
	completer llm.Completer,
	messages MessageFinalizer,
	extractor Extractor,
	generationTimeout time.Duration,
	finalizeTimeout time.Duration,
) *generationService {
	return &generationService{
		completer:         completer,
		messages:          messages,
		extractor:         extractor,
		generationTimeout: generationTimeout,
		finalizeTimeout:   finalizeTimeout,
		active:            make(map[string]struct{}),
	}
}

// Start reserves the chat, persists the round and begins generation in the background.
// A second round for a chat that already has one open is rejected with domain.ErrRoundInProgress.
func (g *generationService) Start(ctx context.Context, spec RoundSpec) (*Round, error) {
	if !g.reserve(spec.ChatID) {
		return nil, fmt.Errorf("chat %s: %w", spec.ChatID, domain.ErrRoundInProgress)
	}

	if spec.Persist != nil {
		if err := spec.Persist(ctx); err != nil {
			g.release(spec.ChatID)
			return nil, err
		}
	}

	round := &Round{
		MessageID: spec.AssistantMessageID,
		chunks:    make(chan string, chunkBufferSize),
		detached:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	g.wg.Add(1)
	go g.run(context.WithoutCancel(ctx), spec, round)

	return round, nil
}

// Shutdown waits for open rounds to finalize or for ctx to expire.
func (g *generationService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for open rounds: %w", ctx.Err())
	}
}

func (g *generationService) run(ctx context.Context, spec RoundSpec, round *Round) {
	defer g.wg.Done()
	defer close(round.done)
	defer close(round.chunks)
	defer g.release(spec.ChatID)

	slog.InfoContext(ctx, "Generation round started", "chatId", spec.ChatID, "messageId", spec.AssistantMessageID, "type", spec.Type)

	text, genErr := g.generate(ctx, spec, round)
	if genErr != nil {
		slog.WarnContext(ctx, "Generation ended with error", "messageId", spec.AssistantMessageID, "chars", len(text), logger.Err(genErr))
	}

	round.result = g.finalize(ctx, spec, text, genErr)

	if round.result.FinalizeErr == nil && genErr == nil && spec.Type == domain.MessageTypeRecipe && g.extractor != nil {
		if err := g.extractor.Extract(ctx, spec.Slug, text); err != nil {
			slog.WarnContext(ctx, "Recipe extraction failed", "slug", spec.Slug, "messageId", spec.AssistantMessageID, logger.Err(err))
		}
	}

	slog.InfoContext(ctx, "Generation round finished", "messageId", spec.AssistantMessageID, "state", round.result.State)
}

func (g *generationService) generate(ctx context.Context, spec RoundSpec, round *Round) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, g.generationTimeout)
	defer cancel()

	var sb strings.Builder
	err := g.completer.StreamCompletion(genCtx, domain.CompletionRequest{
		Model:    spec.Model,
		Messages: spec.Messages,
	}, func(tok string) error {
		sb.WriteString(tok)
		round.relay(tok)
		return nil
	})
	return sb.String(), err
}

// finalize performs the single write that moves the assistant message out of running.
func (g *generationService) finalize(ctx context.Context, spec RoundSpec, text string, genErr error) RoundResult {
	result := RoundResult{Text: text, GenerateErr: genErr, State: domain.RoundDone}

	fctx, cancel := context.WithTimeout(ctx, g.finalizeTimeout)
	defer cancel()

	err := g.messages.Finalize(fctx, spec.AssistantMessageID, text, genErr)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyFinalized):
		slog.WarnContext(ctx, "Assistant message already finalized", "messageId", spec.AssistantMessageID)
		result.FinalizeErr = err
	default:
		slog.ErrorContext(ctx, "Assistant message stuck in running state",
			"chatId", spec.ChatID,
			"messageId", spec.AssistantMessageID,
			"chars", len(text),
			logger.Err(err),
		)
		result.FinalizeErr = err
		result.State = domain.RoundFailed
	}
	return result
}

func (g *generationService) reserve(chatID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[chatID]; ok {
		return false
	}
	g.active[chatID] = struct{}{}
	return true
}

func (g *generationService) release(chatID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, chatID)
}

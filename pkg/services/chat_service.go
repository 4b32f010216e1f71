package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dskvich/recipe-stream/pkg/domain"
	"github.com/dskvich/recipe-stream/pkg/kvstore"
)

type MessageRepository interface {
	StageAppend(ctx context.Context, b *kvstore.Batch, msgs ...domain.Message) error
	Append(ctx context.Context, msgs ...domain.Message) error
	GetMany(ctx context.Context, ids []string) ([]domain.Message, error)
	ListByChat(ctx context.Context, chatID string) ([]domain.Message, error)
	ListRunningSince(ctx context.Context, before time.Time) ([]domain.RunningMessage, error)
}

type RoundStarter interface {
	Start(ctx context.Context, spec RoundSpec) (*Round, error)
}

type chatService struct {
	messages MessageRepository
	rounds   RoundStarter
	model    string
	newID    func() string
	now      func() time.Time
}

func NewChatService(messages MessageRepository, rounds RoundStarter, model string) *chatService {
	return &chatService{
		messages: messages,
		rounds:   rounds,
		model:    model,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// SubmitSuggestions appends a query round to the chat and starts streaming suggestions.
func (c *chatService) SubmitSuggestions(ctx context.Context, chatID string, req domain.PromptRequest) (*Round, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, fmt.Errorf("%w: chat id is empty", domain.ErrValidation)
	}
	userMsg, err := validatePrompt(req)
	if err != nil {
		return nil, err
	}

	batch := newRoundMessages(c.newID, chatID, domain.MessageTypeQuery, suggestionsSystemPrompt, userMsg.Content)

	slog.InfoContext(ctx, "Submitting suggestions round", "chatId", chatID, "messageId", batch[2].ID)

	return c.rounds.Start(ctx, RoundSpec{
		ChatID:             chatID,
		AssistantMessageID: batch[2].ID,
		Type:               domain.MessageTypeQuery,
		Model:              c.model,
		Messages:           modelContext(batch),
		Persist: func(ctx context.Context) error {
			if err := c.messages.Append(ctx, batch...); err != nil {
				return fmt.Errorf("appending query round: %w", err)
			}
			return nil
		},
	})
}

func (c *chatService) Messages(ctx context.Context, chatID string) ([]domain.Message, error) {
	msgs, err := c.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("listing chat %s: %w", chatID, err)
	}
	return msgs, nil
}

// StuckMessages lists assistant placeholders that have been running for longer than threshold.
func (c *chatService) StuckMessages(ctx context.Context, threshold time.Duration) ([]domain.RunningMessage, error) {
	msgs, err := c.messages.ListRunningSince(ctx, c.now().Add(-threshold))
	if err != nil {
		return nil, fmt.Errorf("listing stuck messages: %w", err)
	}
	return msgs, nil
}

// validatePrompt accepts exactly one non-empty user message.
func validatePrompt(req domain.PromptRequest) (domain.UserMessage, error) {
	if len(req.Messages) != 1 {
		return domain.UserMessage{}, fmt.Errorf("%w: exactly one message is required, got %d", domain.ErrValidation, len(req.Messages))
	}

	msg := req.Messages[0]
	if msg.Role != domain.RoleUser {
		return domain.UserMessage{}, fmt.Errorf("%w: role must be %q", domain.ErrValidation, domain.RoleUser)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return domain.UserMessage{}, fmt.Errorf("%w: content is empty", domain.ErrValidation)
	}
	return msg, nil
}

// newRoundMessages builds the system, user and running assistant messages of one round.
func newRoundMessages(newID func() string, chatID string, typ domain.MessageType, system, user string) []domain.Message {
	return []domain.Message{
		{ID: newID(), ChatID: chatID, Role: domain.RoleSystem, Type: typ, Content: system},
		{ID: newID(), ChatID: chatID, Role: domain.RoleUser, Type: typ, Content: user},
		{ID: newID(), ChatID: chatID, Role: domain.RoleAssistant, Type: typ, State: domain.MessageStateRunning},
	}
}

// modelContext is the system and user part of a round, as sent to the model.
func modelContext(round []domain.Message) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: round[0].Role, Content: round[0].Content},
		{Role: round[1].Role, Content: round[1].Content},
	}
}

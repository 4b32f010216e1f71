package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/dskvich/recipe-stream/pkg/domain"
	"github.com/dskvich/recipe-stream/pkg/kvstore"
)

const (
	fieldID        = "id"
	fieldChatID    = "chatId"
	fieldRole      = "role"
	fieldType      = "type"
	fieldState     = "state"
	fieldContent   = "content"
	fieldError     = "error"
	fieldCreatedAt = "createdAt"
)

type messageRepository struct {
	store kvstore.Store
	now   func() time.Time
}

func NewMessageRepository(store kvstore.Store) *messageRepository {
	return &messageRepository{
		store: store,
		now:   time.Now,
	}
}

// StageAppend reserves one sequence number per message from the chat counter and queues
// the message hashes and index entries into b. Messages sort in the order they are given.
// Nothing is visible until b is executed.
func (m *messageRepository) StageAppend(ctx context.Context, b *kvstore.Batch, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("%w: no messages", domain.ErrInvalidBatch)
	}

	chatID := msgs[0].ChatID
	for _, msg := range msgs {
		if msg.ID == "" || msg.ChatID == "" {
			return fmt.Errorf("%w: message without id or chat id", domain.ErrInvalidBatch)
		}
		if msg.ChatID != chatID {
			return fmt.Errorf("%w: messages span chats %s and %s", domain.ErrInvalidBatch, chatID, msg.ChatID)
		}
	}

	last, err := m.store.IncrBy(ctx, domain.ChatSequenceKey(chatID), int64(len(msgs)))
	if err != nil {
		return fmt.Errorf("reserving sequence numbers: %w", err)
	}
	first := last - int64(len(msgs)) + 1

	now := m.now()
	for i, msg := range msgs {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}

		b.HSet(domain.MessageKey(msg.ID), encodeMessage(msg))
		b.ZAdd(domain.ChatMessagesKey(chatID), kvstore.Z{Member: msg.ID, Score: float64(first + int64(i))})

		if msg.IsRunning() {
			b.ZAdd(domain.RunningMessagesKey, kvstore.Z{Member: msg.ID, Score: float64(now.UnixMilli())})
		}
	}

	return nil
}

// Append writes msgs to their chat as one atomic unit.
func (m *messageRepository) Append(ctx context.Context, msgs ...domain.Message) error {
	b := kvstore.NewBatch()
	if err := m.StageAppend(ctx, b, msgs...); err != nil {
		return err
	}
	if err := m.store.Exec(ctx, b); err != nil {
		return fmt.Errorf("appending messages: %w", err)
	}
	return nil
}

// Finalize moves a running assistant message to done together with its content.
// It succeeds at most once per message; later calls return domain.ErrAlreadyFinalized.
func (m *messageRepository) Finalize(ctx context.Context, id, content string, genErr error) error {
	fields := map[string]string{fieldContent: content}
	if genErr != nil {
		fields[fieldError] = genErr.Error()
	}

	b := kvstore.NewBatch().
		HCompareAndSet(domain.MessageKey(id), fieldState, string(domain.MessageStateRunning), string(domain.MessageStateDone)).
		HSet(domain.MessageKey(id), fields).
		ZRem(domain.RunningMessagesKey, id)

	err := m.store.Exec(ctx, b)
	if errors.Is(err, kvstore.ErrConditionFailed) {
		if _, getErr := m.Get(ctx, id); errors.Is(getErr, domain.ErrNotFound) {
			return fmt.Errorf("finalizing message %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("finalizing message %s: %w", id, domain.ErrAlreadyFinalized)
	}
	if err != nil {
		return fmt.Errorf("finalizing message %s: %w", id, err)
	}
	return nil
}

func (m *messageRepository) Get(ctx context.Context, id string) (*domain.Message, error) {
	fields, err := m.store.HGetAll(ctx, domain.MessageKey(id))
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}

	msg := decodeMessage(fields)
	return &msg, nil
}

// GetMany returns the messages in the order of ids. Any missing id is an error.
func (m *messageRepository) GetMany(ctx context.Context, ids []string) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := m.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", id, err)
		}
		out = append(out, *msg)
	}
	return out, nil
}

// ListByChat returns the chat log in index order.
func (m *messageRepository) ListByChat(ctx context.Context, chatID string) ([]domain.Message, error) {
	zs, err := m.store.ZRange(ctx, domain.ChatMessagesKey(chatID), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("fetching chat index: %w", err)
	}

	ids := lo.Map(zs, func(z kvstore.Z, _ int) string { return z.Member })
	return m.GetMany(ctx, ids)
}

// ListRunningSince returns assistant messages still running that started before the given time.
func (m *messageRepository) ListRunningSince(ctx context.Context, before time.Time) ([]domain.RunningMessage, error) {
	zs, err := m.store.ZRangeByScore(ctx, domain.RunningMessagesKey, 0, float64(before.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("fetching running messages: %w", err)
	}

	return lo.Map(zs, func(z kvstore.Z, _ int) domain.RunningMessage {
		return domain.RunningMessage{
			ID:        z.Member,
			StartedAt: time.UnixMilli(int64(z.Score)),
		}
	}), nil
}

func encodeMessage(msg domain.Message) map[string]string {
	fields := map[string]string{
		fieldID:        msg.ID,
		fieldChatID:    msg.ChatID,
		fieldRole:      string(msg.Role),
		fieldType:      string(msg.Type),
		fieldCreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if msg.State != "" {
		fields[fieldState] = string(msg.State)
	}
	if msg.Content != "" {
		fields[fieldContent] = msg.Content
	}
	if msg.Error != "" {
		fields[fieldError] = msg.Error
	}
	return fields
}

func decodeMessage(fields map[string]string) domain.Message {
	createdAt, _ := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	return domain.Message{
		ID:        fields[fieldID],
		ChatID:    fields[fieldChatID],
		Role:      domain.Role(fields[fieldRole]),
		Type:      domain.MessageType(fields[fieldType]),
		State:     domain.MessageState(fields[fieldState]),
		Content:   fields[fieldContent],
		Error:     fields[fieldError],
		CreatedAt: createdAt,
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/dskvich/recipe-stream/pkg/domain"
	"github.com/dskvich/recipe-stream/pkg/kvstore"
)

type RecipeRepository interface {
	Get(ctx context.Context, slug string) (*domain.Recipe, error)
	GetDocument(ctx context.Context, slug string) (map[string]any, error)
	Create(ctx context.Context, recipe domain.Recipe) error
	StageMessageSet(b *kvstore.Batch, slug string, ids []string) error
	ListNew(ctx context.Context, offset, limit int) ([]string, error)
}

type BatchExecutor interface {
	Exec(ctx context.Context, b *kvstore.Batch) error
}

type recipeService struct {
	recipes  RecipeRepository
	messages MessageRepository
	store    BatchExecutor
	rounds   RoundStarter
	model    string
	newID    func() string
	now      func() time.Time
}

func NewRecipeService(
	recipes RecipeRepository,
	messages MessageRepository,
	store BatchExecutor,
	rounds RoundStarter,
	model string,
) *recipeService {
	return &recipeService{
		recipes:  recipes,
		messages: messages,
		store:    store,
		rounds:   rounds,
		model:    model,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Select creates a recipe record for a suggestion picked from the latest completed query round of the chat.
func (r *recipeService) Select(ctx context.Context, chatID string, req domain.SelectRecipeRequest) (*domain.Recipe, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is empty", domain.ErrValidation)
	}

	msgs, err := r.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("listing chat %s: %w", chatID, err)
	}

	querySet, ok := latestQueryRound(msgs)
	if !ok {
		return nil, fmt.Errorf("%w: chat %s has no completed suggestions", domain.ErrMissingContext, chatID)
	}

	recipe := domain.Recipe{
		Slug:            domain.NewSlug(req.Name),
		ChatID:          chatID,
		Name:            req.Name,
		Description:     req.Description,
		CreatedAt:       r.now(),
		QueryMessageSet: querySet,
	}
	if err := r.recipes.Create(ctx, recipe); err != nil {
		return nil, fmt.Errorf("creating recipe: %w", err)
	}

	slog.InfoContext(ctx, "Recipe selected", "slug", recipe.Slug, "chatId", chatID)
	return &recipe, nil
}

// Generate appends a recipe round to the chat that produced the recipe's suggestions and
// starts streaming the full recipe. The completion is extracted into the record afterwards.
func (r *recipeService) Generate(ctx context.Context, slug string, req domain.PromptRequest) (*Round, error) {
	userMsg, err := validatePrompt(req)
	if err != nil {
		return nil, err
	}

	recipe, err := r.recipes.Get(ctx, slug)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: recipe %s does not exist", domain.ErrMissingContext, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching recipe %s: %w", slug, err)
	}

	query, suggestions, err := r.queryContext(ctx, recipe)
	if err != nil {
		return nil, err
	}

	system, err := buildRecipeSystemPrompt(query, suggestions)
	if err != nil {
		return nil, err
	}

	batch := newRoundMessages(r.newID, recipe.ChatID, domain.MessageTypeRecipe, system, userMsg.Content)

	slog.InfoContext(ctx, "Submitting recipe round", "slug", slug, "chatId", recipe.ChatID, "messageId", batch[2].ID)

	return r.rounds.Start(ctx, RoundSpec{
		ChatID:             recipe.ChatID,
		AssistantMessageID: batch[2].ID,
		Type:               domain.MessageTypeRecipe,
		Slug:               slug,
		Model:              r.model,
		Messages:           modelContext(batch),
		Persist: func(ctx context.Context) error {
			b := kvstore.NewBatch()
			if err := r.messages.StageAppend(ctx, b, batch...); err != nil {
				return fmt.Errorf("staging recipe round: %w", err)
			}
			ids := lo.Map(batch, func(m domain.Message, _ int) string { return m.ID })
			if err := r.recipes.StageMessageSet(b, slug, ids); err != nil {
				return err
			}
			if err := r.store.Exec(ctx, b); err != nil {
				return fmt.Errorf("appending recipe round: %w", err)
			}
			return nil
		},
	})
}

func (r *recipeService) Get(ctx context.Context, slug string) (map[string]any, error) {
	return r.recipes.GetDocument(ctx, slug)
}

// ListNew returns up to limit slugs of the most recently extracted recipes.
func (r *recipeService) ListNew(ctx context.Context, limit int) ([]string, error) {
	slugs, err := r.recipes.ListNew(ctx, 0, limit)
	if err != nil {
		return nil, err
	}
	return slugs, nil
}

// queryContext returns the user query and the finished suggestion list the recipe was picked from.
func (r *recipeService) queryContext(ctx context.Context, recipe *domain.Recipe) (string, string, error) {
	if !recipe.HasQueryContext() {
		return "", "", fmt.Errorf("%w: recipe %s has no suggestions round", domain.ErrMissingContext, recipe.Slug)
	}

	msgs, err := r.messages.GetMany(ctx, recipe.QueryMessageSet)
	if errors.Is(err, domain.ErrNotFound) {
		return "", "", fmt.Errorf("%w: %v", domain.ErrMissingContext, err)
	}
	if err != nil {
		return "", "", fmt.Errorf("fetching suggestions round: %w", err)
	}

	user, assistant := msgs[1], msgs[2]
	if user.Role != domain.RoleUser || assistant.Role != domain.RoleAssistant {
		return "", "", fmt.Errorf("%w: recipe %s points at a malformed round", domain.ErrMissingContext, recipe.Slug)
	}
	if !assistant.IsDone() || assistant.Content == "" {
		return "", "", fmt.Errorf("%w: suggestions for recipe %s are not complete", domain.ErrMissingContext, recipe.Slug)
	}
	return user.Content, assistant.Content, nil
}

// latestQueryRound finds the ids of the last system, user and finished assistant query messages in log order.
func latestQueryRound(msgs []domain.Message) ([]string, bool) {
	for i := len(msgs) - 1; i >= 2; i-- {
		assistant := msgs[i]
		if assistant.Role != domain.RoleAssistant || assistant.Type != domain.MessageTypeQuery {
			continue
		}
		if !assistant.IsDone() || assistant.Content == "" || assistant.Error != "" {
			continue
		}
		system, user := msgs[i-2], msgs[i-1]
		if system.Role != domain.RoleSystem || user.Role != domain.RoleUser {
			continue
		}
		return []string{system.ID, user.ID, assistant.ID}, true
	}
	return nil, false
}

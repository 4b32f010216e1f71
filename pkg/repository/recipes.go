package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/dskvich/recipe-stream/pkg/domain"
	"github.com/dskvich/recipe-stream/pkg/kvstore"
)

const (
	fieldSlug               = "slug"
	fieldName               = "name"
	fieldDescription        = "description"
	fieldQueryMessageSet    = "queryMessageSet"
	fieldMessageSet         = "messageSet"
	fieldPrepTime           = "prepTime"
	fieldCookTime           = "cookTime"
	fieldTotalTime          = "totalTime"
	fieldKeywords           = "keywords"
	fieldRecipeYield        = "recipeYield"
	fieldRecipeCategory     = "recipeCategory"
	fieldRecipeCuisine      = "recipeCuisine"
	fieldRecipeIngredient   = "recipeIngredient"
	fieldRecipeInstructions = "recipeInstructions"
	fieldExtractedAt        = "extractedAt"
)

// jsonFields hold JSON-encoded lists inside the recipe hash.
var jsonFields = []string{
	fieldQueryMessageSet,
	fieldMessageSet,
	fieldKeywords,
	fieldRecipeIngredient,
	fieldRecipeInstructions,
}

type recipeRepository struct {
	store kvstore.Store
}

func NewRecipeRepository(store kvstore.Store) *recipeRepository {
	return &recipeRepository{store: store}
}

func (r *recipeRepository) GetFields(ctx context.Context, slug string) (map[string]string, error) {
	fields, err := r.store.HGetAll(ctx, domain.RecipeKey(slug))
	if err != nil {
		return nil, fmt.Errorf("fetching recipe %s: %w", slug, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return fields, nil
}

// GetDocument returns the recipe field map with JSON list fields decoded in place.
func (r *recipeRepository) GetDocument(ctx context.Context, slug string) (map[string]any, error) {
	fields, err := r.GetFields(ctx, slug)
	if err != nil {
		return nil, err
	}

	doc := make(map[string]any, len(fields))
	for k, v := range fields {
		if lo.Contains(jsonFields, k) && json.Valid([]byte(v)) {
			doc[k] = json.RawMessage(v)
			continue
		}
		doc[k] = v
	}
	return doc, nil
}

func (r *recipeRepository) Get(ctx context.Context, slug string) (*domain.Recipe, error) {
	fields, err := r.GetFields(ctx, slug)
	if err != nil {
		return nil, err
	}

	recipe, err := decodeRecipe(slug, fields)
	if err != nil {
		return nil, fmt.Errorf("decoding recipe %s: %w", slug, err)
	}
	return recipe, nil
}

func (r *recipeRepository) Create(ctx context.Context, recipe domain.Recipe) error {
	queryMessageSet, err := json.Marshal(lo.Ternary(recipe.QueryMessageSet == nil, []string{}, recipe.QueryMessageSet))
	if err != nil {
		return fmt.Errorf("encoding query message set: %w", err)
	}

	fields := map[string]string{
		fieldSlug:            recipe.Slug,
		fieldChatID:          recipe.ChatID,
		fieldName:            recipe.Name,
		fieldDescription:     recipe.Description,
		fieldCreatedAt:       recipe.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldQueryMessageSet: string(queryMessageSet),
	}

	if err := r.store.HSet(ctx, domain.RecipeKey(recipe.Slug), fields); err != nil {
		return fmt.Errorf("saving recipe %s: %w", recipe.Slug, err)
	}
	return nil
}

// StageMessageSet queues the provenance of a recipe generation round into b.
func (r *recipeRepository) StageMessageSet(b *kvstore.Batch, slug string, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding message set: %w", err)
	}
	b.HSet(domain.RecipeKey(slug), map[string]string{
		fieldSlug:       slug,
		fieldMessageSet: string(raw),
	})
	return nil
}

// SaveExtracted merges validated recipe data into the record and, the first time only,
// adds the slug to the recently created index.
func (r *recipeRepository) SaveExtracted(ctx context.Context, slug string, data domain.RecipeData, now time.Time) error {
	fields, err := encodeRecipeData(data)
	if err != nil {
		return fmt.Errorf("encoding recipe data: %w", err)
	}
	fields[fieldSlug] = slug
	fields[fieldExtractedAt] = now.UTC().Format(time.RFC3339Nano)

	b := kvstore.NewBatch().
		HSet(domain.RecipeKey(slug), fields).
		ZAddNX(domain.RecipesNewKey, kvstore.Z{Member: slug, Score: float64(now.UnixMilli())})

	if err := r.store.Exec(ctx, b); err != nil {
		return fmt.Errorf("saving extracted recipe %s: %w", slug, err)
	}
	return nil
}

// ListNew returns slugs of recently created recipes, newest first.
func (r *recipeRepository) ListNew(ctx context.Context, offset, limit int) ([]string, error) {
	zs, err := r.store.ZRevRange(ctx, domain.RecipesNewKey, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching recent recipes: %w", err)
	}
	return lo.Map(zs, func(z kvstore.Z, _ int) string { return z.Member }), nil
}

func encodeRecipeData(data domain.RecipeData) (map[string]string, error) {
	keywords, err := json.Marshal(data.Keywords)
	if err != nil {
		return nil, err
	}
	ingredients, err := json.Marshal(data.RecipeIngredient)
	if err != nil {
		return nil, err
	}
	instructions, err := json.Marshal(data.RecipeInstructions)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{
		fieldName:               data.Name,
		fieldPrepTime:           data.PrepTime,
		fieldCookTime:           data.CookTime,
		fieldTotalTime:          data.TotalTime,
		fieldKeywords:           string(keywords),
		fieldRecipeYield:        data.RecipeYield,
		fieldRecipeCategory:     data.RecipeCategory,
		fieldRecipeCuisine:      data.RecipeCuisine,
		fieldRecipeIngredient:   string(ingredients),
		fieldRecipeInstructions: string(instructions),
	}
	if data.Description != "" {
		fields[fieldDescription] = data.Description
	}
	return fields, nil
}

func decodeRecipe(slug string, fields map[string]string) (*domain.Recipe, error) {
	recipe := &domain.Recipe{
		Slug:        slug,
		ChatID:      fields[fieldChatID],
		Name:        fields[fieldName],
		Description: fields[fieldDescription],
	}
	recipe.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])

	if err := unmarshalField(fields, fieldQueryMessageSet, &recipe.QueryMessageSet); err != nil {
		return nil, err
	}
	if err := unmarshalField(fields, fieldMessageSet, &recipe.MessageSet); err != nil {
		return nil, err
	}

	extractedAt, ok := fields[fieldExtractedAt]
	if !ok {
		return recipe, nil
	}
	recipe.ExtractedAt, _ = time.Parse(time.RFC3339Nano, extractedAt)

	data := &domain.RecipeData{
		Name:           fields[fieldName],
		Description:    fields[fieldDescription],
		PrepTime:       fields[fieldPrepTime],
		CookTime:       fields[fieldCookTime],
		TotalTime:      fields[fieldTotalTime],
		RecipeYield:    fields[fieldRecipeYield],
		RecipeCategory: fields[fieldRecipeCategory],
		RecipeCuisine:  fields[fieldRecipeCuisine],
	}
	if err := unmarshalField(fields, fieldKeywords, &data.Keywords); err != nil {
		return nil, err
	}
	if err := unmarshalField(fields, fieldRecipeIngredient, &data.RecipeIngredient); err != nil {
		return nil, err
	}
	if err := unmarshalField(fields, fieldRecipeInstructions, &data.RecipeInstructions); err != nil {
		return nil, err
	}
	recipe.Data = data

	return recipe, nil
}

func unmarshalField(fields map[string]string, field string, v any) error {
	raw, ok := fields[field]
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	return nil
}

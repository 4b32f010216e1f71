package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dskvich/recipe-stream/pkg/database"
	"github.com/dskvich/recipe-stream/pkg/domain"
	"github.com/dskvich/recipe-stream/pkg/kvstore"
)

func sampleRecipeData() domain.RecipeData {
	return domain.RecipeData{
		Name:           "Chicken Fried Rice",
		PrepTime:       "PT10M",
		CookTime:       "PT15M",
		TotalTime:      "PT25M",
		Keywords:       domain.Keywords{"quick", "rice"},
		RecipeYield:    "4 servings",
		RecipeCategory: "dinner",
		RecipeCuisine:  "Chinese",
		RecipeIngredient: []domain.Ingredient{
			{Quantity: "2 cups", Name: "cooked rice"},
			{Quantity: "1", Name: "chicken breast"},
		},
		RecipeInstructions: []domain.HowToStep{
			{Type: "HowToStep", Text: "Dice the chicken."},
			{Type: "HowToStep", Text: "Fry everything together."},
		},
	}
}

func newSQLiteStore(t *testing.T) kvstore.Store {
	t.Helper()
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "recipes.db"))
	require.NoError(t, err)
	_, err = database.Migrate(db, database.DialectSQLite)
	require.NoError(t, err)
	s := kvstore.NewSQLStore(db)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecipe_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewRecipeRepository(kvstore.NewMemoryStore())
	createdAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, domain.Recipe{
		Slug:            "fried-rice-1",
		ChatID:          "c1",
		Name:            "Fried rice",
		Description:     "Leftover rice, crisped",
		CreatedAt:       createdAt,
		QueryMessageSet: []string{"s", "u", "a"},
	}))

	got, err := repo.Get(ctx, "fried-rice-1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ChatID)
	assert.Equal(t, []string{"s", "u", "a"}, got.QueryMessageSet)
	assert.True(t, got.HasQueryContext())
	assert.True(t, got.CreatedAt.Equal(createdAt))
	assert.Nil(t, got.Data)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecipe_SaveExtractedRoundTrip(t *testing.T) {
	for name, store := range map[string]kvstore.Store{
		"memory": kvstore.NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := NewRecipeRepository(store)
			now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

			data := sampleRecipeData()
			require.NoError(t, repo.SaveExtracted(ctx, "fried-rice", data, now))

			got, err := repo.Get(ctx, "fried-rice")
			require.NoError(t, err)
			require.NotNil(t, got.Data)
			assert.Equal(t, data, *got.Data)
			assert.True(t, got.ExtractedAt.Equal(now))

			slugs, err := repo.ListNew(ctx, 0, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"fried-rice"}, slugs)
		})
	}
}

func TestRecipe_RecentIndexKeepsFirstExtraction(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	repo := NewRecipeRepository(store)
	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveExtracted(ctx, "a", sampleRecipeData(), first))
	require.NoError(t, repo.SaveExtracted(ctx, "b", sampleRecipeData(), first.Add(time.Minute)))
	require.NoError(t, repo.SaveExtracted(ctx, "a", sampleRecipeData(), first.Add(time.Hour)))

	score, ok, err := store.ZScore(ctx, domain.RecipesNewKey, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float64(first.UnixMilli()), score)

	slugs, err := repo.ListNew(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, slugs)
}

func TestRecipe_StageMessageSetInBatch(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	repo := NewRecipeRepository(store)

	b := kvstore.NewBatch()
	require.NoError(t, repo.StageMessageSet(b, "soup", []string{"s", "u", "a"}))
	require.NoError(t, store.Exec(ctx, b))

	got, err := repo.Get(ctx, "soup")
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "u", "a"}, got.MessageSet)
	assert.False(t, got.HasQueryContext())
}

func TestRecipe_GetDocumentDecodesLists(t *testing.T) {
	ctx := context.Background()
	repo := NewRecipeRepository(kvstore.NewMemoryStore())
	require.NoError(t, repo.SaveExtracted(ctx, "fried-rice", sampleRecipeData(), time.Now()))

	doc, err := repo.GetDocument(ctx, "fried-rice")
	require.NoError(t, err)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded struct {
		Name             string              `json:"name"`
		Keywords         []string            `json:"keywords"`
		RecipeIngredient []domain.Ingredient `json:"recipeIngredient"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Chicken Fried Rice", decoded.Name)
	assert.Equal(t, []string{"quick", "rice"}, decoded.Keywords)
	assert.Len(t, decoded.RecipeIngredient, 2)

	_, err = repo.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

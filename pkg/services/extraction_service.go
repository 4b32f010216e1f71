package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/dskvich/recipe-stream/pkg/domain"
)

// iso8601Duration matches the full designator form PnYnMnWnDTnHnMnS. At least one
// component is required, checked in isISO8601Duration.
var iso8601Duration = regexp.MustCompile(`^P(?:\d+Y)?(?:\d+M)?(?:\d+W)?(?:\d+D)?(?:T(?:\d+H)?(?:\d+M)?(?:\d+(?:\.\d+)?S)?)?$`)

type ExtractedRecipeWriter interface {
	SaveExtracted(ctx context.Context, slug string, data domain.RecipeData, now time.Time) error
}

type extractionService struct {
	recipes  ExtractedRecipeWriter
	validate *validator.Validate
	now      func() time.Time
}

func NewExtractionService(recipes ExtractedRecipeWriter) *extractionService {
	v := validator.New(validator.WithRequiredStructEnabled())
	// registration only fails for an empty tag name
	_ = v.RegisterValidation("iso8601duration", func(fl validator.FieldLevel) bool {
		return isISO8601Duration(fl.Field().String())
	})

	return &extractionService{
		recipes:  recipes,
		validate: v,
		now:      time.Now,
	}
}

// Extract parses text as a recipe document and commits it to the recipe record only when
// it passes validation. Any failure leaves the record untouched.
func (e *extractionService) Extract(ctx context.Context, slug, text string) error {
	data, err := e.Parse(text)
	if err != nil {
		return err
	}

	if err := e.recipes.SaveExtracted(ctx, slug, *data, e.now()); err != nil {
		return fmt.Errorf("%w: saving recipe %s: %v", domain.ErrExtraction, slug, err)
	}

	slog.InfoContext(ctx, "Recipe extracted", "slug", slug, "ingredients", len(data.RecipeIngredient), "steps", len(data.RecipeInstructions))
	return nil
}

// Parse decodes and validates a model completion without touching the store.
func (e *extractionService) Parse(text string) (*domain.RecipeData, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(stripCodeFence(text)), &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %v", domain.ErrExtraction, err)
	}
	if err := checkScalarTypes(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}

	var data domain.RecipeData
	if err := doc.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decoding recipe: %v", domain.ErrExtraction, err)
	}

	if err := e.validate.Struct(data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}

	return &data, nil
}

// stringFields must be written as YAML strings. yaml.v3 would otherwise turn
// `recipeYield: 4` or `name: 123` into text silently. Ingredient quantities may be bare numbers.
var (
	stringFields = []string{"name", "description", "prepTime", "cookTime", "totalTime", "recipeYield", "recipeCategory", "recipeCuisine"}
	stepFields   = []string{"@type", "text"}
)

func checkScalarTypes(doc *yaml.Node) error {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return fmt.Errorf("empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping at the top level")
	}

	if err := checkStringValues(root, stringFields); err != nil {
		return err
	}

	steps := mappingValue(root, "recipeInstructions")
	if steps == nil || steps.Kind != yaml.SequenceNode {
		return nil
	}
	for i, step := range steps.Content {
		if step.Kind != yaml.MappingNode {
			continue
		}
		if err := checkStringValues(step, stepFields); err != nil {
			return fmt.Errorf("recipeInstructions[%d]: %w", i, err)
		}
	}
	return nil
}

func checkStringValues(m *yaml.Node, keys []string) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, value := m.Content[i].Value, m.Content[i+1]
		if !lo.Contains(keys, key) || value.Kind != yaml.ScalarNode {
			continue
		}
		if tag := value.ShortTag(); tag != "!!str" && tag != "!!null" {
			return fmt.Errorf("field %s: expected a string, got %s", key, tag)
		}
	}
	return nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// stripCodeFence removes a surrounding markdown code fence such as ```yaml ... ```.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	} else {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(trimmed), "```"))
}

func isISO8601Duration(s string) bool {
	if s == "P" || strings.HasSuffix(s, "T") {
		return false
	}
	return iso8601Duration.MatchString(s)
}

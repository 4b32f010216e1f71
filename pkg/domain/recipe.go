package domain

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Recipe is the derived record keyed by slug. Extracted fields stay zero until
// the first successful extraction.
type Recipe struct {
	Slug            string
	ChatID          string
	Name            string
	Description     string
	CreatedAt       time.Time
	QueryMessageSet []string
	MessageSet      []string

	Data        *RecipeData
	ExtractedAt time.Time
}

// HasQueryContext reports whether the recipe points at a suggestions round.
func (r Recipe) HasQueryContext() bool {
	return r.ChatID != "" && len(r.QueryMessageSet) == 3
}

// SelectRecipeRequest picks one of the suggestions of a query round.
type SelectRecipeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RecipeData is the strict structure the model is asked to emit as YAML.
type RecipeData struct {
	Name               string       `yaml:"name" json:"name" validate:"required"`
	Description        string       `yaml:"description" json:"description,omitempty"`
	PrepTime           string       `yaml:"prepTime" json:"prepTime" validate:"required,iso8601duration"`
	CookTime           string       `yaml:"cookTime" json:"cookTime" validate:"required,iso8601duration"`
	TotalTime          string       `yaml:"totalTime" json:"totalTime" validate:"required,iso8601duration"`
	Keywords           Keywords     `yaml:"keywords" json:"keywords" validate:"required,min=1,dive,required"`
	RecipeYield        string       `yaml:"recipeYield" json:"recipeYield" validate:"required"`
	RecipeCategory     string       `yaml:"recipeCategory" json:"recipeCategory" validate:"required"`
	RecipeCuisine      string       `yaml:"recipeCuisine" json:"recipeCuisine" validate:"required"`
	RecipeIngredient   []Ingredient `yaml:"recipeIngredient" json:"recipeIngredient" validate:"required,min=1,dive"`
	RecipeInstructions []HowToStep  `yaml:"recipeInstructions" json:"recipeInstructions" validate:"required,min=1,dive"`
}

type Ingredient struct {
	Quantity string `yaml:"quantity" json:"quantity" validate:"required"`
	Name     string `yaml:"name" json:"name" validate:"required"`
}

type HowToStep struct {
	Type string `yaml:"@type" json:"@type" validate:"omitempty,eq=HowToStep"`
	Text string `yaml:"text" json:"text" validate:"required"`
}

// Keywords accepts either a YAML sequence or a single comma separated string.
type Keywords []string

func (k *Keywords) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*k = splitKeywords(raw)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		out := make(Keywords, 0, len(list))
		for _, item := range list {
			out = append(out, strings.TrimSpace(item))
		}
		*k = out
		return nil
	default:
		return fmt.Errorf("keywords: unexpected yaml node kind %d", node.Kind)
	}
}

func splitKeywords(raw string) Keywords {
	var out Keywords
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

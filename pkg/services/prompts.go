package services

import (
	"bytes"
	"fmt"
	"text/template"
)

const suggestionsSystemPrompt = `You are a helpful cooking assistant. The user describes what they have or what they feel like eating.
Suggest six recipes that match the request. Reply with a numbered list only, one recipe per line, in the form:

1. Name: one sentence description
`

var recipeSystemPrompt = template.Must(template.New("recipe").Parse(`
The original query to generate recipes was: {{ .Query }}
Based on this query, a list of recipe options was generated: {{ .Suggestions }}

The user will provide the name and description they selected. Please generate a full recipe for this selection following the specified format.

Format: Provide the recipe information in YAML format. Below is an example order of the keys you should return in the object.

name: "Name of the recipe"
description: "One or two sentences describing the dish"
prepTime: "ISO 8601 duration format (e.g., PT15M for 15 minutes)"
cookTime: "ISO 8601 duration format (e.g., PT1H for 1 hour)"
totalTime: "ISO 8601 duration format (e.g., PT1H15M for 1 hour 15 minutes)"
keywords: "Keywords related to the recipe, comma separated"
recipeYield: "Yield of the recipe (e.g., '1 loaf', '4 servings')"
recipeCategory: "The type of meal or course (e.g., dinner, dessert)"
recipeCuisine: "The cuisine of the recipe (e.g., Italian, Mexican)"
recipeIngredient:
  - quantity: "Quantity (e.g., '3 or 4')"
    name: "Ingredient (e.g., 'ripe bananas, smashed')"
  - quantity: "Another quantity"
    name: "Another ingredient"
recipeInstructions:
  - "@type": "HowToStep"
    text: "A step for making the item"
  - "@type": "HowToStep"
    text: "Another step for making the item"
`))

func buildRecipeSystemPrompt(query, suggestions string) (string, error) {
	var buf bytes.Buffer
	err := recipeSystemPrompt.Execute(&buf, struct {
		Query       string
		Suggestions string
	}{query, suggestions})
	if err != nil {
		return "", fmt.Errorf("rendering recipe prompt: %w", err)
	}
	return buf.String(), nil
}

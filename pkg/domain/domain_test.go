package domain

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Chicken & Rice Bowl", "chicken-rice-bowl"},
		{"  Crème brûlée  ", "creme-brulee"},
		{"Pad Thai (vegan!)", "pad-thai-vegan"},
		{"???", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.name), tt.name)
	}
}

func TestNewSlug_AppendsSuffix(t *testing.T) {
	slug := NewSlug("Chicken Soup")
	assert.Regexp(t, regexp.MustCompile(`^chicken-soup-[0-9a-f]{8}$`), slug)
	assert.NotEqual(t, slug, NewSlug("Chicken Soup"))

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}$`), NewSlug("!!!"))
}

func TestKeywords_UnmarshalYAML(t *testing.T) {
	var fromString struct {
		Keywords Keywords `yaml:"keywords"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(`keywords: "quick, weeknight ,, rice"`), &fromString))
	assert.Equal(t, Keywords{"quick", "weeknight", "rice"}, fromString.Keywords)

	var fromList struct {
		Keywords Keywords `yaml:"keywords"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("keywords:\n  - quick\n  - ' rice '\n"), &fromList))
	assert.Equal(t, Keywords{"quick", "rice"}, fromList.Keywords)

	var fromMap struct {
		Keywords Keywords `yaml:"keywords"`
	}
	assert.Error(t, yaml.Unmarshal([]byte("keywords:\n  a: b\n"), &fromMap))
}

func TestMessage_States(t *testing.T) {
	running := Message{Role: RoleAssistant, State: MessageStateRunning}
	assert.True(t, running.IsRunning())
	assert.False(t, running.IsDone())

	user := Message{Role: RoleUser}
	assert.False(t, user.IsRunning())
	assert.True(t, user.IsDone())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "message:m1", MessageKey("m1"))
	assert.Equal(t, "chat:c1:messages", ChatMessagesKey("c1"))
	assert.Equal(t, "chat:c1:seq", ChatSequenceKey("c1"))
	assert.Equal(t, "recipe:soup-1", RecipeKey("soup-1"))
}

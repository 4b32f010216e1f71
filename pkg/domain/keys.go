package domain

// Key layout of the log store.
const (
	RecipesNewKey      = "recipes:new"
	RunningMessagesKey = "messages:running"
)

func MessageKey(id string) string { return "message:" + id }

func ChatMessagesKey(chatID string) string { return "chat:" + chatID + ":messages" }

func ChatSequenceKey(chatID string) string { return "chat:" + chatID + ":seq" }

func RecipeKey(slug string) string { return "recipe:" + slug }

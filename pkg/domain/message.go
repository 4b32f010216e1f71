package domain

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType selects the pipeline a message belongs to.
type MessageType string

const (
	MessageTypeQuery  MessageType = "query"
	MessageTypeRecipe MessageType = "recipe"
)

type MessageState string

const (
	MessageStateRunning MessageState = "running"
	MessageStateDone    MessageState = "done"
)

type Message struct {
	ID        string       `json:"id"`
	ChatID    string       `json:"chatId"`
	Role      Role         `json:"role"`
	Type      MessageType  `json:"type"`
	State     MessageState `json:"state,omitempty"`
	Content   string       `json:"content,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// IsRunning reports whether the message is an assistant placeholder still waiting for its content.
func (m Message) IsRunning() bool {
	return m.Role == RoleAssistant && m.State == MessageStateRunning
}

// IsDone treats a missing state as done.
func (m Message) IsDone() bool {
	return m.State == "" || m.State == MessageStateDone
}

// UserMessage is a message submitted by a client.
type UserMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PromptRequest is the body of the suggestions and recipe endpoints.
type PromptRequest struct {
	Messages []UserMessage `json:"messages"`
}

// RunningMessage is an entry of the running index: an assistant placeholder not yet finalized.
type RunningMessage struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
}

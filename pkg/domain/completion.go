package domain

// ChatMessage is one message of the model context.
type ChatMessage struct {
	Role    Role
	Content string
}

type CompletionRequest struct {
	Model    string
	Messages []ChatMessage
}

// RoundState is the terminal state of a generation round.
type RoundState string

const (
	RoundDone   RoundState = "done"
	RoundFailed RoundState = "failed"
)

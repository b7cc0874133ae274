package model

// ConversationTurn is one prior message in a learner's Q&A thread.
type ConversationTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// ChatMessage is a message sent to the chat completion provider.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

type Answer struct {
	Text          string   `json:"answer"`
	HasTranscript bool     `json:"hasTranscript"`
	ContextUsed   []string `json:"contextUsed"`
	Model         string   `json:"model"`
}

const (
	ContextSourceTranscript = "transcript"
	ContextSourceSession    = "session"
)

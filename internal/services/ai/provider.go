package ai

import (
	"context"
)

// Message roles understood by providers
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one message of a completion request
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the interface for LLM providers
type Provider interface {
	// Complete returns the full reply to messages
	Complete(ctx context.Context, messages []Message) (string, error)

	// CompleteStream streams the reply as text chunks. The chunk channel is
	// closed when the reply ends; at most one error is sent on the error
	// channel, which is closed afterwards.
	CompleteStream(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// VisionProvider answers a prompt about an image
type VisionProvider interface {
	// CompleteImage sends the system prompt, the user prompt and the image
	// and returns the full reply
	CompleteImage(ctx context.Context, system, prompt string, image []byte, contentType string) (string, error)
}

// SystemMessage creates a system message
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

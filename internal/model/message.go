// Package model defines data structures for the chat client.
package model

import (
	"strings"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single chat turn. Messages are never mutated after creation.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// NewUserMessage returns a user message with the given content.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage returns an assistant message with the given content.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SendMessageRequest is the request to submit a chat message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse is the response after a chat exchange completes.
type SendMessageResponse struct {
	SessionID string   `json:"session_id"`
	Reply     *Message `json:"reply,omitempty"`
	Failed    bool     `json:"failed,omitempty"`
	Ignored   bool     `json:"ignored,omitempty"`
}

// IsBlank reports whether s contains only whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

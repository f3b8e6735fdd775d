package model

// DefaultSessionTitle is the placeholder title of a session that has not
// received its first exchange yet.
const DefaultSessionTitle = "New Chat"

// ChatSession is an ordered conversation with a title.
type ChatSession struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Messages []Message `json:"messages" yaml:"messages"`
}

// Clone returns a deep copy of the session.
func (s *ChatSession) Clone() ChatSession {
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	return ChatSession{ID: s.ID, Title: s.Title, Messages: msgs}
}

// SessionSnapshot is the persisted form of the session list.
type SessionSnapshot struct {
	Sessions []ChatSession `json:"sessions"`
	ActiveID string        `json:"active_id"`
}

// SessionSummary is a lightweight listing entry.
type SessionSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
	Active       bool   `json:"active"`
}

// ListSessionsResponse is the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	ActiveID string           `json:"active_id,omitempty"`
	Total    int              `json:"total"`
}

// RenameSessionRequest is the request to rename a session.
type RenameSessionRequest struct {
	Title string `json:"title"`
}

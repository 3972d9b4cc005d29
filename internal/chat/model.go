// Package chat owns the authoritative multi-session conversation state:
// the ordered session collection, the active-session pointer, and the
// send-message state machine that drives the completion client.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DefaultTitle is the placeholder title for sessions with no user message yet.
const DefaultTitle = "New Chat"

// titleMaxRunes caps auto-derived and persisted titles.
const titleMaxRunes = 40

// Message is one transcript entry. Immutable after creation; ordering within
// a session is insertion order.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"isError,omitempty"`
}

// NewMessage creates a transcript message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Session is one persisted conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Starred   bool      `json:"starred,omitempty"`
}

// NewSession creates an empty session with the placeholder title.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the transcript and bumps UpdatedAt.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UTC()
}

// HasUserMessage reports whether any user-authored message exists yet.
// The first one fixes the session title.
func (s *Session) HasUserMessage() bool {
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

// TitleFromContent derives a session title from message text: trimmed and
// truncated to 40 runes. Truncation is rune-based and may split mid-word.
func TitleFromContent(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return DefaultTitle
	}
	runes := []rune(trimmed)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes])
	}
	return trimmed
}

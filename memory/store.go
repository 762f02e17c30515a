// Package memory defines agent session storage.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/KamdynS/agent-playground/llm"
)

// ErrSessionNotFound is returned when a session does not exist for the agent
var ErrSessionNotFound = errors.New("session not found")

// Message is a stored conversation message
type Message struct {
	llm.Message
	CreatedAt int64 `json:"created_at"`
}

// Session is a persisted conversation between a user and one agent
type Session struct {
	ID        string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id,omitempty"`
	Name      string    `json:"session_name,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore persists sessions. Sessions are scoped by agent: looking up a
// session id under the wrong agent yields ErrSessionNotFound.
type SessionStore interface {
	// Get returns a session
	Get(ctx context.Context, agentID, sessionID string) (*Session, error)

	// Upsert creates or replaces a session and stamps its timestamps
	Upsert(ctx context.Context, session *Session) error

	// List returns the agent's sessions, most recently updated first.
	// An empty userID lists sessions of every user.
	List(ctx context.Context, agentID, userID string) ([]Session, error)

	// Rename sets a session's display name
	Rename(ctx context.Context, agentID, sessionID, name string) error

	// Delete removes a session
	Delete(ctx context.Context, agentID, sessionID string) error
}

// Touch sets UpdatedAt to now and CreatedAt when unset. Stores call it from
// Upsert.
func Touch(s *Session, now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

// SortByRecent orders sessions by UpdatedAt descending, breaking ties by id
func SortByRecent(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

// NameFrom derives a session name from the first user message
func NameFrom(text string) string {
	const maxLen = 50
	name := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(name) <= maxLen {
		return name
	}
	runes := []rune(name)
	return strings.TrimSpace(string(runes[:maxLen])) + "..."
}

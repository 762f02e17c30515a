package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/KamdynS/agent-playground/memory"
)

// Store implements an in-memory session store. Sessions are copied on the
// way in and out so callers never share state with the store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*memory.Session // agentID -> sessionID
	now      func() time.Time
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]map[string]*memory.Session),
		now:      time.Now,
	}
}

// Get implements memory.SessionStore interface
func (s *Store) Get(ctx context.Context, agentID, sessionID string) (*memory.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[agentID][sessionID]
	if !ok {
		return nil, memory.ErrSessionNotFound
	}
	return clone(sess)
}

// Upsert implements memory.SessionStore interface
func (s *Store) Upsert(ctx context.Context, session *memory.Session) error {
	if session.ID == "" || session.AgentID == "" {
		return fmt.Errorf("session id and agent id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sessions[session.AgentID][session.ID]; ok && session.CreatedAt.IsZero() {
		session.CreatedAt = prev.CreatedAt
	}
	memory.Touch(session, s.now())

	cp, err := clone(session)
	if err != nil {
		return err
	}
	if s.sessions[session.AgentID] == nil {
		s.sessions[session.AgentID] = make(map[string]*memory.Session)
	}
	s.sessions[session.AgentID][session.ID] = cp
	return nil
}

// List implements memory.SessionStore interface
func (s *Store) List(ctx context.Context, agentID, userID string) ([]memory.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]memory.Session, 0, len(s.sessions[agentID]))
	for _, sess := range s.sessions[agentID] {
		if userID != "" && sess.UserID != userID {
			continue
		}
		cp, err := clone(sess)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	memory.SortByRecent(out)
	return out, nil
}

// Rename implements memory.SessionStore interface
func (s *Store) Rename(ctx context.Context, agentID, sessionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[agentID][sessionID]
	if !ok {
		return memory.ErrSessionNotFound
	}
	sess.Name = name
	sess.UpdatedAt = s.now()
	return nil
}

// Delete implements memory.SessionStore interface
func (s *Store) Delete(ctx context.Context, agentID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[agentID][sessionID]; !ok {
		return memory.ErrSessionNotFound
	}
	delete(s.sessions[agentID], sessionID)
	return nil
}

func clone(sess *memory.Session) (*memory.Session, error) {
	b, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("copy session: %w", err)
	}
	var out memory.Session
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("copy session: %w", err)
	}
	return &out, nil
}

var _ memory.SessionStore = (*Store)(nil)

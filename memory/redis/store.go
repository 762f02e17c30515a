// Package redis stores agent sessions in Redis.
//
// Each session is a JSON value under <prefix>:session:<agent>:<id>; a sorted
// set <prefix>:sessions:<agent> scored by update time indexes them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rds "github.com/redis/go-redis/v9"

	"github.com/KamdynS/agent-playground/memory"
)

// Store implements memory.SessionStore on Redis
type Store struct {
	client *rds.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewStore creates a store. A zero ttl keeps sessions forever.
func NewStore(client *rds.Client, ttl time.Duration, prefix string) *Store {
	if prefix == "" {
		prefix = "playground"
	}
	return &Store{client: client, ttl: ttl, prefix: prefix, now: time.Now}
}

func (s *Store) sessionKey(agentID, sessionID string) string {
	return fmt.Sprintf("%s:session:%s:%s", s.prefix, agentID, sessionID)
}

func (s *Store) indexKey(agentID string) string {
	return fmt.Sprintf("%s:sessions:%s", s.prefix, agentID)
}

// Get implements memory.SessionStore interface
func (s *Store) Get(ctx context.Context, agentID, sessionID string) (*memory.Session, error) {
	val, err := s.client.Get(ctx, s.sessionKey(agentID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, rds.Nil) {
			return nil, memory.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var sess memory.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// Upsert implements memory.SessionStore interface
func (s *Store) Upsert(ctx context.Context, session *memory.Session) error {
	if session.ID == "" || session.AgentID == "" {
		return fmt.Errorf("session id and agent id are required")
	}
	if session.CreatedAt.IsZero() {
		if prev, err := s.Get(ctx, session.AgentID, session.ID); err == nil {
			session.CreatedAt = prev.CreatedAt
		}
	}
	memory.Touch(session, s.now())
	return s.write(ctx, session)
}

func (s *Store) write(ctx context.Context, session *memory.Session) error {
	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	index := s.indexKey(session.AgentID)
	_, err = s.client.TxPipelined(ctx, func(p rds.Pipeliner) error {
		p.Set(ctx, s.sessionKey(session.AgentID, session.ID), b, s.ttl)
		p.ZAdd(ctx, index, rds.Z{Score: float64(session.UpdatedAt.UnixNano()), Member: session.ID})
		if s.ttl > 0 {
			p.Expire(ctx, index, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write: %w", err)
	}
	return nil
}

// List implements memory.SessionStore interface
func (s *Store) List(ctx context.Context, agentID, userID string) ([]memory.Session, error) {
	index := s.indexKey(agentID)
	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	if len(ids) == 0 {
		return []memory.Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(agentID, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make([]memory.Session, 0, len(vals))
	var expired []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// value expired but the index entry survived
			expired = append(expired, ids[i])
			continue
		}
		var sess memory.Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", ids[i], err)
		}
		if userID != "" && sess.UserID != userID {
			continue
		}
		out = append(out, sess)
	}
	if len(expired) > 0 {
		_ = s.client.ZRem(ctx, index, expired...).Err()
	}
	memory.SortByRecent(out)
	return out, nil
}

// Rename implements memory.SessionStore interface
func (s *Store) Rename(ctx context.Context, agentID, sessionID, name string) error {
	sess, err := s.Get(ctx, agentID, sessionID)
	if err != nil {
		return err
	}
	sess.Name = name
	sess.UpdatedAt = s.now()
	return s.write(ctx, sess)
}

// Delete implements memory.SessionStore interface
func (s *Store) Delete(ctx context.Context, agentID, sessionID string) error {
	var del *rds.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p rds.Pipeliner) error {
		del = p.Del(ctx, s.sessionKey(agentID, sessionID))
		p.ZRem(ctx, s.indexKey(agentID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	if del.Val() == 0 {
		return memory.ErrSessionNotFound
	}
	return nil
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

var _ memory.SessionStore = (*Store)(nil)

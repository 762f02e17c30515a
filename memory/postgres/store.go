// Package postgres stores agent sessions in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KamdynS/agent-playground/memory"
)

// DefaultTable is used when no table name is configured
const DefaultTable = "playground_sessions"

// Store implements memory.SessionStore on a pgx pool.
//
// Schema (created by Migrate):
//
//	CREATE TABLE playground_sessions (
//	  agent_id text NOT NULL,
//	  session_id text NOT NULL,
//	  user_id text NOT NULL DEFAULT '',
//	  session_name text NOT NULL DEFAULT '',
//	  messages jsonb NOT NULL DEFAULT '[]',
//	  created_at timestamptz NOT NULL,
//	  updated_at timestamptz NOT NULL,
//	  PRIMARY KEY (agent_id, session_id)
//	);
type Store struct {
	pool  *pgxpool.Pool
	table string
	now   func() time.Time
}

// New creates a store over pool. Call Migrate before first use.
func New(pool *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{
		pool:  pool,
		table: pgx.Identifier{table}.Sanitize(),
		// timestamptz keeps microseconds
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Connect opens a pool for dsn and migrates the schema
func Connect(ctx context.Context, dsn, table string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	s := New(pool, table)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the sessions table if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  agent_id text NOT NULL,
  session_id text NOT NULL,
  user_id text NOT NULL DEFAULT '',
  session_name text NOT NULL DEFAULT '',
  messages jsonb NOT NULL DEFAULT '[]',
  created_at timestamptz NOT NULL,
  updated_at timestamptz NOT NULL,
  PRIMARY KEY (agent_id, session_id)
)`, s.table))
	if err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

const columns = "agent_id, session_id, user_id, session_name, messages, created_at, updated_at"

func scanSession(row pgx.Row) (*memory.Session, error) {
	var (
		sess memory.Session
		raw  []byte
	)
	if err := row.Scan(&sess.AgentID, &sess.ID, &sess.UserID, &sess.Name, &raw, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &sess.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", sess.ID, err)
	}
	return &sess, nil
}

// Get implements memory.SessionStore interface
func (s *Store) Get(ctx context.Context, agentID, sessionID string) (*memory.Session, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE agent_id=$1 AND session_id=$2", columns, s.table),
		agentID, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, memory.ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres get: %w", err)
	}
	return sess, nil
}

// Upsert implements memory.SessionStore interface. An existing row keeps its
// created_at.
func (s *Store) Upsert(ctx context.Context, session *memory.Session) error {
	if session.ID == "" || session.AgentID == "" {
		return fmt.Errorf("session id and agent id are required")
	}
	msgs := session.Messages
	if msgs == nil {
		msgs = []memory.Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	memory.Touch(session, s.now())
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (agent_id, session_id) DO UPDATE SET
  user_id=excluded.user_id,
  session_name=excluded.session_name,
  messages=excluded.messages,
  updated_at=excluded.updated_at
RETURNING created_at`, s.table, columns)

	err = s.pool.QueryRow(ctx, query,
		session.AgentID, session.ID, session.UserID, session.Name, raw, session.CreatedAt, session.UpdatedAt,
	).Scan(&session.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres upsert: %w", err)
	}
	return nil
}

// List implements memory.SessionStore interface
func (s *Store) List(ctx context.Context, agentID, userID string) ([]memory.Session, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE agent_id=$1 AND ($2 = '' OR user_id=$2) ORDER BY updated_at DESC, session_id ASC", columns, s.table),
		agentID, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres list: %w", err)
	}
	defer rows.Close()

	out := []memory.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres list: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// Rename implements memory.SessionStore interface
func (s *Store) Rename(ctx context.Context, agentID, sessionID, name string) error {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET session_name=$3, updated_at=$4 WHERE agent_id=$1 AND session_id=$2", s.table),
		agentID, sessionID, name, s.now())
	if err != nil {
		return fmt.Errorf("postgres rename: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrSessionNotFound
	}
	return nil
}

// Delete implements memory.SessionStore interface
func (s *Store) Delete(ctx context.Context, agentID, sessionID string) error {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE agent_id=$1 AND session_id=$2", s.table),
		agentID, sessionID)
	if err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrSessionNotFound
	}
	return nil
}

// Close releases the pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ memory.SessionStore = (*Store)(nil)

// Package memorytest holds the behavior every memory.SessionStore must share.
package memorytest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/agent-playground/llm"
	"github.com/KamdynS/agent-playground/memory"
)

// Factory returns an empty store. Agent ids used by the contract are unique
// per run so shared backends do not need cleaning.
type Factory func(t *testing.T) memory.SessionStore

func message(role, content string) memory.Message {
	return memory.Message{Message: llm.Message{Role: role, Content: content}, CreatedAt: time.Now().Unix()}
}

// RunSessionStore exercises store against the SessionStore contract
func RunSessionStore(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()
	store := newStore(t)
	agent := "agent-" + time.Now().Format("150405.000000000")
	other := agent + "-other"

	_, err := store.Get(ctx, agent, "missing")
	require.ErrorIs(t, err, memory.ErrSessionNotFound)

	first := &memory.Session{
		ID:      "s1",
		AgentID: agent,
		UserID:  "alice",
		Name:    "first",
		Messages: []memory.Message{
			message("user", "hello"),
			{Message: llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{{ID: "c1", Type: "function", Function: llm.Function{Name: "duckduckgo_search", Arguments: `{"query":"go"}`}}}}},
			{Message: llm.Message{Role: "tool", ToolCallID: "c1", Content: "[]"}},
			message("assistant", "hi"),
		},
	}
	require.NoError(t, store.Upsert(ctx, first))
	assert.False(t, first.CreatedAt.IsZero())
	assert.False(t, first.UpdatedAt.IsZero())
	created := first.CreatedAt

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Upsert(ctx, &memory.Session{ID: "s2", AgentID: agent, UserID: "bob", Name: "second"}))
	require.NoError(t, store.Upsert(ctx, &memory.Session{ID: "s1", AgentID: other, UserID: "alice"}))

	got, err := store.Get(ctx, agent, "s1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "hello", got.Messages[0].Content)
	require.Len(t, got.Messages[1].ToolCalls, 1)
	assert.Equal(t, "duckduckgo_search", got.Messages[1].ToolCalls[0].Function.Name)
	assert.Equal(t, "c1", got.Messages[2].ToolCallID)

	// returned sessions are copies
	got.Name = "mutated"
	again, err := store.Get(ctx, agent, "s1")
	require.NoError(t, err)
	assert.Equal(t, "first", again.Name)

	list, err := store.List(ctx, agent, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].ID, "most recent first")
	assert.Equal(t, "s1", list[1].ID)

	list, err = store.List(ctx, agent, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].ID)

	// updating keeps the creation time and moves the session to the front
	time.Sleep(5 * time.Millisecond)
	again.Messages = append(again.Messages, message("user", "more"))
	again.CreatedAt = time.Time{}
	require.NoError(t, store.Upsert(ctx, again))
	again, err = store.Get(ctx, agent, "s1")
	require.NoError(t, err)
	assert.WithinDuration(t, created, again.CreatedAt, time.Millisecond)
	assert.Len(t, again.Messages, 5)
	list, err = store.List(ctx, agent, "")
	require.NoError(t, err)
	assert.Equal(t, "s1", list[0].ID)

	require.NoError(t, store.Rename(ctx, agent, "s2", "renamed"))
	got, err = store.Get(ctx, agent, "s2")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.ErrorIs(t, store.Rename(ctx, agent, "nope", "x"), memory.ErrSessionNotFound)

	require.NoError(t, store.Delete(ctx, agent, "s2"))
	_, err = store.Get(ctx, agent, "s2")
	assert.ErrorIs(t, err, memory.ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(ctx, agent, "s2"), memory.ErrSessionNotFound)

	// the other agent's session is untouched
	_, err = store.Get(ctx, other, "s1")
	require.NoError(t, err)

	assert.Error(t, store.Upsert(ctx, &memory.Session{AgentID: agent}))
}

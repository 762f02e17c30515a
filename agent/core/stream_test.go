package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/agent-playground/llm"
	"github.com/KamdynS/agent-playground/tools"
)

func collect(t *testing.T, a Agent, in RunInput) ([]Event, error) {
	t.Helper()
	out := make(chan Event, 32)
	errc := make(chan error, 1)
	go func() { errc <- a.RunStream(context.Background(), in, out) }()

	var events []Event
	for ev := range out {
		events = append(events, ev)
	}
	return events, <-errc
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestRunStream_ForwardsModelDeltas(t *testing.T) {
	model := &fakeLLM{chunks: []string{"a", "b", "", "c"}}
	a := newAgent(t, model, Config{ID: "s"})

	events, err := collect(t, a, RunInput{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, []EventType{
		EventRunStarted, EventRunResponse, EventRunResponse, EventRunResponse, EventRunCompleted,
	}, eventTypes(events))
	assert.Equal(t, "a", events[1].Content)

	last := events[len(events)-1]
	require.NotNil(t, last.Response)
	assert.Equal(t, "abc", last.Response.Content)
	for _, ev := range events {
		assert.Equal(t, "s", ev.AgentID)
		assert.Equal(t, events[0].RunID, ev.RunID)
		assert.Equal(t, events[0].SessionID, ev.SessionID)
	}
}

func TestRunStream_EmitsToolEvents(t *testing.T) {
	model := &fakeLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "echo", `{"text":"go"}`)}},
		{Content: "done"},
	}}
	a := newAgent(t, model, Config{Tools: []tools.Toolkit{echoKit()}, Display: Display{ShowToolCalls: true}})

	events, err := collect(t, a, RunInput{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, []EventType{
		EventRunStarted, EventToolCallStarted, EventToolCallCompleted, EventRunResponse, EventRunCompleted,
	}, eventTypes(events))

	assert.Empty(t, events[1].Tool.Result)
	assert.Equal(t, "echo:go", events[2].Tool.Result)
	assert.Equal(t, " - Running: echo(text=go)\n\ndone", events[3].Content)
}

func TestRunStream_ModelError(t *testing.T) {
	model := &fakeLLM{err: llm.NewLLMError(llm.ProviderGroq, llm.ErrorTypeAuthentication, "API key is required")}
	a := newAgent(t, model, Config{})

	events, err := collect(t, a, RunInput{Message: "x"})
	require.Error(t, err)
	assert.True(t, llm.IsAuthenticationError(err))
	assert.Equal(t, []EventType{EventRunStarted}, eventTypes(events))
}

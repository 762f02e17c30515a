package core

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/agent-playground/llm"
	"github.com/KamdynS/agent-playground/tools"
)

func TestSimpleGuardrails(t *testing.T) {
	g := &SimpleGuardrails{MaxInputChars: 5, DenySubstrings: []string{"bad"}}
	ctx := context.Background()

	req := &llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: "hello"}}}
	require.NoError(t, g.BeforeLLMCall(ctx, req))

	req = &llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: "toolong"}}}
	require.NoError(t, g.BeforeLLMCall(ctx, req))
	assert.Equal(t, "toolo", req.Messages[0].Content)

	req = &llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: "BAD"}}}
	assert.ErrorIs(t, g.BeforeLLMCall(ctx, req), ErrBlocked)

	// only the latest user turn is inspected
	req = &llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: "bad"}, {Role: "tool", Content: "x"}}}
	assert.NoError(t, g.BeforeLLMCall(ctx, req))
}

func TestSimpleGuardrails_TruncatesOnRuneBoundary(t *testing.T) {
	g := &SimpleGuardrails{MaxInputChars: 4}
	ctx := context.Background()

	cases := []struct{ in, want string }{
		{in: "€€€", want: "€€€"},
		{in: "€€€€€", want: "€€€€"},
		{in: "héllo wld", want: "héll"},
		{in: "日本語のテキスト", want: "日本語の"},
	}
	for _, tc := range cases {
		req := &llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: tc.in}}}
		require.NoError(t, g.BeforeLLMCall(ctx, req))
		got := req.Messages[0].Content
		assert.Equal(t, tc.want, got, tc.in)
		assert.True(t, utf8.ValidString(got), tc.in)
	}
}

type countingMW struct {
	beforeLLM, afterLLM, beforeTool, afterTool, afterRun int
}

func (m *countingMW) BeforeLLMCall(ctx context.Context, req *llm.ChatRequest) error {
	m.beforeLLM++
	return nil
}
func (m *countingMW) AfterLLMResponse(ctx context.Context, resp *llm.Response) error {
	m.afterLLM++
	return nil
}
func (m *countingMW) BeforeToolExecute(ctx context.Context, toolName string, input string) error {
	m.beforeTool++
	return nil
}
func (m *countingMW) AfterToolExecute(ctx context.Context, toolName string, result string, execErr error) error {
	m.afterTool++
	return nil
}
func (m *countingMW) AfterRun(ctx context.Context, resp *RunResponse) error { m.afterRun++; return nil }

func TestMiddleware_HooksInvoked(t *testing.T) {
	mw := &countingMW{}
	model := &fakeLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "echo", `{"text":"go"}`)}},
		{Content: "ok"},
	}}
	a, err := NewChatAgent(ChatConfig{
		Model:      model,
		Middleware: []Middleware{mw},
		Config:     Config{Tools: []tools.Toolkit{echoKit()}},
	})
	require.NoError(t, err)

	_, err = a.Run(context.Background(), RunInput{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, countingMW{beforeLLM: 2, afterLLM: 2, beforeTool: 1, afterTool: 1, afterRun: 1}, *mw)
}

func TestGuardrails_BlockRunAndTools(t *testing.T) {
	model := &fakeLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "echo", `{"text":"go"}`)}},
		{Content: "ok"},
	}}
	g := &SimpleGuardrails{DenySubstrings: []string{"secret"}, DenyTools: []string{"echo"}}
	a, err := NewChatAgent(ChatConfig{
		Model:      model,
		Middleware: []Middleware{g},
		Config:     Config{Tools: []tools.Toolkit{echoKit()}},
	})
	require.NoError(t, err)

	_, err = a.Run(context.Background(), RunInput{Message: "tell me the secret"})
	assert.True(t, errors.Is(err, ErrBlocked))
	assert.Empty(t, model.Requests())

	_, err = a.Run(context.Background(), RunInput{Message: "hi"})
	require.NoError(t, err)
	reqs := model.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "error: tool echo is not permitted", reqs[1].Messages[3].Content)
}

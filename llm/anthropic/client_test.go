package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/KamdynS/agent-playground/llm"
	"github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:      "test-key",
		Model:       llm.ModelClaude35Haiku,
		BaseURL:     srv.URL + "/v1",
		RetryConfig: llm.RetryConfig{MaxRetries: 1, InitialDelay: 1, MaxDelay: 1, BackoffFactor: 1},
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.True(t, llm.IsAuthenticationError(err))

	_, err = NewClient(Config{APIKey: "k", Model: llm.ModelLlama33Versatile})
	require.Error(t, err)

	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, llm.ModelClaude35Haiku, c.Model())
	assert.Equal(t, llm.ProviderAnthropic, c.Provider())
}

func TestChat_ParsesToolUse(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [
				{"type": "text", "text": "Checking."},
				{"type": "tool_use", "id": "toolu_1", "name": "get_current_stock_price", "input": {"symbol": "NVDA"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 12, "output_tokens": 8}
		}`)
	})

	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		SystemPrompt: "be brief",
		Messages:     []llm.Message{{Role: "user", Content: "NVDA price?"}},
		Tools: []llm.Tool{{Type: "function", Function: llm.ToolFunction{
			Name:       "get_current_stock_price",
			Parameters: map[string]any{"type": "object"},
		}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Checking.", resp.Content)
	assert.Equal(t, "tool_use", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_current_stock_price", resp.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"symbol":"NVDA"}`, resp.ToolCalls[0].Function.Arguments)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 20, resp.Usage.TotalTokens)

	assert.Equal(t, "be brief", captured["system"])
	assert.Len(t, captured["tools"], 1)
}

func TestBuildRequest_GroupsToolResults(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)

	req := c.buildRequest(&llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "extra"},
			{Role: "user", Content: "compare"},
			{Role: "assistant", ToolCalls: []llm.ToolCall{
				{ID: "a", Function: llm.Function{Name: "x", Arguments: `{"symbol":"A"}`}},
				{ID: "b", Function: llm.Function{Name: "x", Arguments: ""}},
			}},
			{Role: "tool", ToolCallID: "a", Content: "1"},
			{Role: "tool", ToolCallID: "b", Content: "error: boom"},
		},
	})

	assert.Equal(t, "extra", req.System)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, anthropic.RoleAssistant, req.Messages[1].Role)
	require.Len(t, req.Messages[1].Content, 2)
	assert.JSONEq(t, `{}`, string(req.Messages[1].Content[1].MessageContentToolUse.Input))

	results := req.Messages[2]
	assert.Equal(t, anthropic.RoleUser, results.Role)
	require.Len(t, results.Content, 2)
	for _, block := range results.Content {
		assert.Equal(t, anthropic.MessagesContentTypeToolResult, block.Type)
	}
}

func TestChat_AuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	})

	_, err := c.Completion(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, llm.IsAuthenticationError(err))
	assert.Equal(t, int32(1), calls.Load())
}

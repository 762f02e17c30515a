package playground

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/agent-playground/agent/core"
	"github.com/KamdynS/agent-playground/llm"
	"github.com/KamdynS/agent-playground/memory"
	"github.com/KamdynS/agent-playground/memory/inmemory"
	"github.com/KamdynS/agent-playground/tools"
	"github.com/KamdynS/agent-playground/tools/duckduckgo"
)

// echoModel answers with the last user message
type echoModel struct{ err error }

func lastContent(req *llm.ChatRequest) string {
	return req.Messages[len(req.Messages)-1].Content
}

func (m echoModel) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Content: "echo: " + lastContent(req), Model: "echo"}, nil
}

func (m echoModel) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	return &llm.Response{Content: prompt}, nil
}

func (m echoModel) Stream(ctx context.Context, req *llm.ChatRequest, out chan<- *llm.Response) error {
	defer close(out)
	if m.err != nil {
		return m.err
	}
	out <- &llm.Response{Content: "echo: "}
	out <- &llm.Response{Content: lastContent(req)}
	return nil
}

func (echoModel) Model() string          { return "echo" }
func (echoModel) Provider() llm.Provider { return llm.ProviderGroq }
func (echoModel) Validate() error        { return nil }

func newAgent(t *testing.T, id, name string, model llm.Client, store memory.SessionStore, kits ...tools.Toolkit) core.Agent {
	t.Helper()
	a, err := core.NewChatAgent(core.ChatConfig{
		Model:    model,
		Sessions: store,
		Config: core.Config{
			ID:      id,
			Name:    name,
			Role:    name + " role",
			Model:   llm.ModelRef{Provider: llm.ProviderGroq, ID: llm.ModelLlama33Versatile},
			Tools:   kits,
			Display: core.Display{Markdown: true, ShowToolCalls: true},
		},
	})
	require.NoError(t, err)
	return a
}

func testPlayground(t *testing.T, opts ...Option) (*Playground, memory.SessionStore) {
	t.Helper()
	ddg, err := duckduckgo.New(duckduckgo.Config{})
	require.NoError(t, err)
	store := inmemory.NewStore()
	pg, err := New([]core.Agent{
		newAgent(t, "web", "Web Search Agent", echoModel{}, store, ddg),
		newAgent(t, "finance", "Finance AI Agent", echoModel{}, store),
		newAgent(t, "broken", "Broken Agent", echoModel{err: llm.NewLLMError(llm.ProviderGroq, llm.ErrorTypeAuthentication, "API key is required")}, nil),
	}, opts...)
	require.NoError(t, err)
	return pg, store
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	return do(t, h, http.MethodPost, Prefix+path, "application/json", body)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoAgents)

	a := newAgent(t, "a", "Same", echoModel{}, nil)
	b := newAgent(t, "b", "Same", echoModel{}, nil)
	_, err = New([]core.Agent{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate agent name "Same"`)

	c := newAgent(t, "a", "Other", echoModel{}, nil)
	_, err = New([]core.Agent{a, c})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate agent id "a"`)
}

func TestStatusAndHealth(t *testing.T) {
	pg, _ := testPlayground(t)

	w := do(t, pg.Handler(), http.MethodGet, Prefix+"/status", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"playground":"available"}`, w.Body.String())

	w = do(t, pg.Handler(), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, pg.Handler(), http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAgents_InOrder(t *testing.T) {
	pg, _ := testPlayground(t)
	require.Len(t, pg.Agents(), 3)

	w := do(t, pg.Handler(), http.MethodGet, Prefix+"/agent/get", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var infos []AgentInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	require.Len(t, infos, 3)
	assert.Equal(t, "Web Search Agent", infos[0].Name)
	assert.Equal(t, "Finance AI Agent", infos[1].Name)
	assert.Equal(t, "web", infos[0].AgentID)
	assert.Equal(t, []string{"duckduckgo_search", "duckduckgo_news"}, infos[0].Tools)
	assert.Equal(t, []string{}, infos[1].Tools)
	assert.True(t, infos[0].Storage)
	assert.False(t, infos[2].Storage)
	assert.True(t, infos[0].Markdown)
	assert.Equal(t, llm.ProviderGroq, infos[0].Model.Provider)
}

func TestRunAgent_JSON(t *testing.T) {
	pg, _ := testPlayground(t)

	w := postJSON(t, pg.Handler(), "/agent/run", `{"agent_id":"finance","message":"price of NVDA"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp core.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "echo: price of NVDA", resp.Content)
	assert.Equal(t, "finance", resp.AgentID)
	assert.NotEmpty(t, resp.SessionID)
}

func TestRunAgent_Form(t *testing.T) {
	pg, _ := testPlayground(t)

	form := url.Values{"agent_id": {"Web Search Agent"}, "message": {"hello"}, "stream": {"false"}}
	w := do(t, pg.Handler(), http.MethodPost, Prefix+"/agent/run", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"content":"echo: hello"`)
}

func TestRunAgent_Errors(t *testing.T) {
	pg, _ := testPlayground(t)
	h := pg.Handler()

	w := postJSON(t, h, "/agent/run", `{"agent_id":"ghost","message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = postJSON(t, h, "/agent/run", `{"agent_id":"web","message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, h, "/agent/run", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	form := url.Values{"agent_id": {"web"}, "message": {"hi"}, "stream": {"maybe"}}
	w = do(t, h, http.MethodPost, Prefix+"/agent/run", "application/x-www-form-urlencoded", form.Encode())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, h, "/agent/run", `{"agent_id":"broken","message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "API key is required")

	w = do(t, h, http.MethodGet, Prefix+"/agent/run", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRunAgent_Stream(t *testing.T) {
	pg, _ := testPlayground(t)

	w := postJSON(t, pg.Handler(), "/agent/run", `{"agent_id":"finance","message":"hi","stream":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	started := strings.Index(body, "event: RunStarted")
	chunk := strings.Index(body, "event: RunResponse")
	done := strings.Index(body, "event: RunCompleted")
	assert.True(t, started >= 0 && started < chunk && chunk < done, body)
	assert.Contains(t, body, `"content":"echo: hi"`)
}

func TestRunAgent_StreamError(t *testing.T) {
	pg, _ := testPlayground(t)

	w := postJSON(t, pg.Handler(), "/agent/run", `{"agent_id":"broken","message":"hi","stream":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event: RunError")
	assert.Contains(t, w.Body.String(), "API key is required")
}

func TestSessions(t *testing.T) {
	pg, _ := testPlayground(t)
	h := pg.Handler()

	w := postJSON(t, h, "/agent/run", `{"agent_id":"web","message":"first question","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var run core.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))

	w = postJSON(t, h, "/agent/sessions/all", `{"agent_id":"web","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var summaries []SessionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, run.SessionID, summaries[0].SessionID)
	assert.Equal(t, "first question", summaries[0].SessionName)

	// sessions are per agent
	w = postJSON(t, h, "/agent/sessions/all", `{"agent_id":"finance"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = postJSON(t, h, "/agent/sessions/"+run.SessionID, `{"agent_id":"web"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var sess memory.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "echo: first question", sess.Messages[1].Content)

	w = postJSON(t, h, "/agent/sessions/"+run.SessionID, `{"agent_id":"web","user_id":"someone-else"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = postJSON(t, h, "/agent/session/rename", `{"agent_id":"web","session_id":"`+run.SessionID+`","name":"Renamed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = postJSON(t, h, "/agent/sessions/all", `{"agent_id":"web"}`)
	assert.Contains(t, w.Body.String(), `"session_name":"Renamed"`)

	w = postJSON(t, h, "/agent/session/rename", `{"agent_id":"web","session_id":"`+run.SessionID+`","name":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, h, "/agent/session/delete", `{"agent_id":"web","session_id":"`+run.SessionID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = postJSON(t, h, "/agent/session/delete", `{"agent_id":"web","session_id":"`+run.SessionID+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = postJSON(t, h, "/agent/sessions/"+run.SessionID, `{"agent_id":"web"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_OwnershipOnRenameAndDelete(t *testing.T) {
	pg, _ := testPlayground(t)
	h := pg.Handler()

	w := postJSON(t, h, "/agent/run", `{"agent_id":"web","message":"mine","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var run core.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))

	w = postJSON(t, h, "/agent/session/rename", `{"agent_id":"web","user_id":"u2","session_id":"`+run.SessionID+`","name":"Stolen"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = postJSON(t, h, "/agent/session/delete", `{"agent_id":"web","user_id":"u2","session_id":"`+run.SessionID+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = postJSON(t, h, "/agent/sessions/"+run.SessionID, `{"agent_id":"web","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"session_name":"mine"`)

	w = postJSON(t, h, "/agent/session/rename", `{"agent_id":"web","user_id":"u1","session_id":"`+run.SessionID+`","name":"Kept"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = postJSON(t, h, "/agent/session/delete", `{"agent_id":"web","user_id":"u1","session_id":"`+run.SessionID+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessions_AgentWithoutStorage(t *testing.T) {
	pg, _ := testPlayground(t)

	w := postJSON(t, pg.Handler(), "/agent/sessions/all", `{"agent_id":"broken"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "storage")

	w = postJSON(t, pg.Handler(), "/agent/sessions/all", `{"agent_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIKey(t *testing.T) {
	pg, _ := testPlayground(t, WithAPIKey("secret"))
	h := pg.Handler()

	w := do(t, h, http.MethodGet, Prefix+"/agent/get", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, Prefix+"/status", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	for _, hdr := range [][2]string{{"X-API-Key", "secret"}, {"Authorization", "Bearer secret"}} {
		req := httptest.NewRequest(http.MethodGet, Prefix+"/agent/get", nil)
		req.Header.Set(hdr[0], hdr[1])
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, hdr[0])
	}
}

func TestCORS(t *testing.T) {
	pg, _ := testPlayground(t)

	req := httptest.NewRequest(http.MethodOptions, Prefix+"/agent/run", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	pg.Handler().ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsRoute(t *testing.T) {
	pg, _ := testPlayground(t, WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "playground_active_agents 3\n")
	})))

	w := do(t, pg.Handler(), http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "playground_active_agents")
}

func TestDescribe_NoStorageWhenNil(t *testing.T) {
	info := describe(newAgent(t, "x", "X", echoModel{err: errors.New("unused")}, nil))
	assert.False(t, info.Storage)
	assert.Equal(t, "X role", info.Role)
}

package http

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	obs "github.com/KamdynS/agent-playground/observability"
)

func text(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	})
}

func TestNewServer_DefaultConfig(t *testing.T) {
	s := NewServer(text("ok"), Config{})
	assert.Equal(t, "localhost:7777", s.Addr())
	assert.Equal(t, 10*time.Second, s.server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, s.server.WriteTimeout)

	s = NewServer(nil, Config{Host: "0.0.0.0", Port: 9000})
	assert.Equal(t, "0.0.0.0:9000", s.Addr())
}

func TestServer_RequestID(t *testing.T) {
	s := NewServer(text("ok"), Config{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(obs.HeaderRequestID))

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.Header.Set(obs.HeaderRequestID, "req-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get(obs.HeaderRequestID))
}

func TestServer_SetHandler(t *testing.T) {
	s := NewServer(text("v1"), Config{})
	h := s.Handler()

	get := func() string {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		return w.Body.String()
	}
	assert.Equal(t, "v1", get())
	s.SetHandler(text("v2"))
	assert.Equal(t, "v2", get())
}

func TestServer_AccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var fromCtx bool
	s := NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		fromCtx = true
		WriteError(w, http.StatusTeapot, "short and stout")
	}), Config{Logger: logger})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/brew", nil)
	req.Header.Set(obs.HeaderRequestID, "abc")
	s.Handler().ServeHTTP(w, req)

	assert.True(t, fromCtx)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.JSONEq(t, `{"error":"short and stout"}`, w.Body.String())

	out := buf.String()
	assert.Contains(t, out, `"message":"inside"`)
	assert.Contains(t, out, `"request_id":"abc"`)
	assert.Contains(t, out, `"path":"/brew"`)
	assert.Contains(t, out, `"status":418`)
}

func TestEventWriter(t *testing.T) {
	w := httptest.NewRecorder()
	ew, err := NewEventWriter(w)
	require.NoError(t, err)

	require.NoError(t, ew.Send("RunResponse", map[string]string{"content": "hi"}))
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "event: RunResponse\ndata: {\"content\":\"hi\"}\n\n", w.Body.String())
	assert.True(t, w.Flushed)
}

func TestEventWriter_ThroughMiddleware(t *testing.T) {
	s := NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ew, err := NewEventWriter(w)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = ew.Send("ping", "x")
	}), Config{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), "event: ping\n"))
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(text("up"), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

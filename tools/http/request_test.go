package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "NVDA", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1", r.URL.Query().Get("keep"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price": 1.5}`))
	}))
	defer srv.Close()

	var out struct {
		Price float64 `json:"price"`
	}
	c := NewClient(0)
	require.NoError(t, c.GetJSON(context.Background(), srv.URL+"/q?keep=1", url.Values{"symbol": {"NVDA"}}, &out))
	assert.Equal(t, 1.5, out.Price)
}

func TestGetDocument(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		_, _ = w.Write([]byte(`<html><body><a class="x" href="/a">A</a><a class="x" href="/b">B</a></body></html>`))
	}))
	defer srv.Close()

	doc, err := NewClient(0).GetDocument(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Find("a.x").Length())
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.WriteHeader(stdhttp.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	err := NewClient(0).GetJSON(context.Background(), srv.URL, nil, &struct{}{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, stdhttp.StatusTooManyRequests, se.Status)
	assert.Equal(t, "slow down", se.Body)
}

func TestBadURL(t *testing.T) {
	_, err := NewClient(0).Get(context.Background(), "://nope", nil)
	assert.Error(t, err)
}

func TestCookiesAndText(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if r.URL.Path == "/set" {
			stdhttp.SetCookie(w, &stdhttp.Cookie{Name: "B", Value: "session", Path: "/"})
			return
		}
		c, err := r.Cookie("B")
		if err != nil {
			w.WriteHeader(stdhttp.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("  " + c.Value + "\n"))
	}))
	defer srv.Close()

	c := NewClient(0).WithCookies()
	_, err := c.GetText(context.Background(), srv.URL+"/set", nil)
	require.NoError(t, err)

	got, err := c.GetText(context.Background(), srv.URL+"/get", nil)
	require.NoError(t, err)
	assert.Equal(t, "session", got)
}

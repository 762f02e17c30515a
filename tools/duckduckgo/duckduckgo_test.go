package duckduckgo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/agent-playground/tools"
)

const resultsPage = `<html><body>
<div class="result results_links result--ad"><a class="result__a" href="https://ads.example">Ad</a></div>
<div class="result results_links">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&amp;rut=abc">The Go Programming Language</a></h2>
  <a class="result__snippet">Go is an open source programming language.</a>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="https://pkg.go.dev/">Go Packages</a></h2>
  <div class="result__snippet">Search for Go packages.</div>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="https://go.dev/blog">Go Blog</a></h2>
</div>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		_, _ = io.WriteString(w, resultsPage)
	})
	mux.HandleFunc("/news.js", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4-1234567890", r.URL.Query().Get("vqd"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"results":[
			{"date":1700000000,"title":"Go 1.22 released","excerpt":"New loop semantics","url":"https://go.dev/blog/go1.22","source":"Go Blog"},
			{"date":0,"title":"Second","url":"https://example.com/2"}
		]}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><script>DDG.deep.initialize('/d.js?q=golang&vqd="4-1234567890"&p=1');</script></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newToolkit(t *testing.T, features map[string]bool) *Toolkit {
	srv := newServer(t)
	kit, err := New(Config{Features: features, HTMLURL: srv.URL + "/html/", SiteURL: srv.URL})
	require.NoError(t, err)
	return kit
}

func toolNames(kit tools.Toolkit) []string {
	var names []string
	for _, tool := range kit.Tools() {
		names = append(names, tool.Name())
	}
	return names
}

func TestFeatures(t *testing.T) {
	kit := newToolkit(t, nil)
	assert.Equal(t, Name, kit.Name())
	assert.Equal(t, []string{"duckduckgo_search", "duckduckgo_news"}, toolNames(kit))

	kit = newToolkit(t, map[string]bool{FeatureNews: false})
	assert.Equal(t, []string{"duckduckgo_search"}, toolNames(kit))
	assert.False(t, kit.Features()[FeatureNews])

	_, err := New(Config{Features: map[string]bool{"images": true}})
	assert.Error(t, err)
}

func TestSearchTool(t *testing.T) {
	kit := newToolkit(t, nil)
	out, err := kit.Tools()[0].Execute(context.Background(), `{"query":"golang","max_results":2}`)
	require.NoError(t, err)

	var results []Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, Result{
		Title:   "The Go Programming Language",
		URL:     "https://go.dev/",
		Snippet: "Go is an open source programming language.",
	}, results[0])
	assert.Equal(t, "https://pkg.go.dev/", results[1].URL)
}

func TestSearchDefaultsAndValidation(t *testing.T) {
	kit := newToolkit(t, nil)

	results, err := kit.Search(context.Background(), "golang", defaultMaxResults)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	_, err = kit.Tools()[0].Execute(context.Background(), `{"query":"   "}`)
	assert.EqualError(t, err, "query is required")
}

func TestNewsTool(t *testing.T) {
	kit := newToolkit(t, nil)
	out, err := kit.Tools()[1].Execute(context.Background(), `{"query":"golang"}`)
	require.NoError(t, err)

	var news []NewsResult
	require.NoError(t, json.Unmarshal([]byte(out), &news))
	require.Len(t, news, 2)
	assert.Equal(t, "Go 1.22 released", news[0].Title)
	assert.Equal(t, "2023-11-14T22:13:20Z", news[0].Date)
	assert.Equal(t, "Go Blog", news[0].Source)
	assert.Empty(t, news[1].Date)
}

func TestNormalizeCapsResults(t *testing.T) {
	a, err := searchArgs{Query: "x", MaxResults: 500}.normalize()
	require.NoError(t, err)
	assert.Equal(t, maxResultsLimit, a.MaxResults)
}

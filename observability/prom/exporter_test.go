package prom

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExporterMetricsAndHandler(t *testing.T) {
	e := New()
	route := map[string]string{"route": "/v1/playground/agent/run", "method": "POST", "status_code": "200"}
	e.IncrementRequests(route)
	e.RecordLatency(3*time.Millisecond, route)
	e.IncrementTokensUsed(7, map[string]string{"direction": "input", "model": "llama-3.3-70b-versatile"})
	e.RecordError("tool_error", map[string]string{"tool_name": "duckduckgo_search"})
	e.SetActiveAgents(2)

	rr := httptest.NewRecorder()
	Handler(e).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()

	assert.Contains(t, body, `playground_requests_total{method="POST",route="/v1/playground/agent/run",status_code="200"} 1`)
	assert.Contains(t, body, `playground_request_latency_seconds_count{method="POST",route="/v1/playground/agent/run",status_code="200"} 1`)
	assert.Contains(t, body, `playground_tokens_total{direction="input",model="llama-3.3-70b-versatile"} 7`)
	assert.Contains(t, body, `playground_errors_total{tool_name="duckduckgo_search",type="tool_error"} 1`)
	assert.Contains(t, body, "playground_active_agents 2")
}

func TestExporterConcurrentUse(t *testing.T) {
	e := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.IncrementRequests(nil)
			e.RecordLatency(time.Millisecond, nil)
		}()
	}
	wg.Wait()

	rr := httptest.NewRecorder()
	Handler(e).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rr.Body.String(), "playground_requests_total 20")
}

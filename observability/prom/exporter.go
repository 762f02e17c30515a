// Package prom renders playground metrics in the Prometheus text format.
package prom

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KamdynS/agent-playground/observability"
)

const namespace = "playground"

// Exporter implements observability.Metrics and serves the collected series.
// It is safe for concurrent use.
type Exporter struct {
	mu       sync.Mutex
	requests map[string]float64
	latency  map[string]float64
	count    map[string]float64
	tokens   map[string]float64
	errors   map[string]float64
	active   float64
}

// New creates a new in-process exporter.
func New() *Exporter {
	return &Exporter{
		requests: make(map[string]float64),
		latency:  make(map[string]float64),
		count:    make(map[string]float64),
		tokens:   make(map[string]float64),
		errors:   make(map[string]float64),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(e *Exporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		e.WriteTo(w)
	})
}

// WriteTo renders every series sorted by name and labels.
func (e *Exporter) WriteTo(w io.Writer) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	writeFamily(&b, "requests_total", "counter", e.requests)
	writeFamily(&b, "request_latency_seconds_sum", "counter", e.latency)
	writeFamily(&b, "request_latency_seconds_count", "counter", e.count)
	writeFamily(&b, "tokens_total", "counter", e.tokens)
	writeFamily(&b, "errors_total", "counter", e.errors)
	fmt.Fprintf(&b, "# TYPE %s_active_agents gauge\n%s_active_agents %s\n", namespace, namespace, formatFloat(e.active))

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func writeFamily(b *strings.Builder, name, kind string, series map[string]float64) {
	if len(series) == 0 {
		return
	}
	full := namespace + "_" + name
	fmt.Fprintf(b, "# TYPE %s %s\n", full, kind)

	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s%s %s\n", full, k, formatFloat(series[k]))
	}
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func (e *Exporter) IncrementRequests(labels map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests[labelKey(labels)]++
}

func (e *Exporter) RecordLatency(d time.Duration, labels map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := labelKey(labels)
	e.latency[key] += d.Seconds()
	e.count[key]++
}

func (e *Exporter) IncrementTokensUsed(tokens int, labels map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens[labelKey(labels)] += float64(tokens)
}

func (e *Exporter) RecordError(errorType string, labels map[string]string) {
	merged := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		merged[k] = v
	}
	merged["type"] = errorType

	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors[labelKey(merged)]++
}

func (e *Exporter) SetActiveAgents(count int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = float64(count)
}

// labelKey renders labels as a sorted Prometheus label set.
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + strconv.Quote(labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

var _ observability.Metrics = (*Exporter)(nil)

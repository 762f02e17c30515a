package observability

import (
	"time"
)

// Metrics defines the interface for collecting playground metrics
type Metrics interface {
	// IncrementRequests increments the request counter
	IncrementRequests(labels map[string]string)

	// RecordLatency records request latency
	RecordLatency(duration time.Duration, labels map[string]string)

	// IncrementTokensUsed increments token usage counter
	IncrementTokensUsed(tokens int, labels map[string]string)

	// RecordError increments error counter
	RecordError(errorType string, labels map[string]string)

	// SetActiveAgents sets the gauge for served agents
	SetActiveAgents(count int)
}

// NoOpMetrics is a no-operation implementation of Metrics
type NoOpMetrics struct{}

func (n *NoOpMetrics) IncrementRequests(labels map[string]string)                     {}
func (n *NoOpMetrics) RecordLatency(duration time.Duration, labels map[string]string) {}
func (n *NoOpMetrics) IncrementTokensUsed(tokens int, labels map[string]string)       {}
func (n *NoOpMetrics) RecordError(errorType string, labels map[string]string)         {}
func (n *NoOpMetrics) SetActiveAgents(count int)                                      {}

var _ Metrics = (*NoOpMetrics)(nil)

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KamdynS/agent-playground/llm"
	"github.com/KamdynS/agent-playground/memory"
	"github.com/KamdynS/agent-playground/tools"
)

const (
	// DefaultMaxIterations bounds the model/tool loop of a run
	DefaultMaxIterations = 10
	// DefaultHistoryMessages is how many stored messages are replayed
	DefaultHistoryMessages = 20
)

// Agent defines the core interface for AI agents
type Agent interface {
	// Config returns the agent definition
	Config() Config

	// Sessions returns the agent's session store, nil when it keeps none
	Sessions() memory.SessionStore

	// Run executes one reasoning-action loop and returns the final answer
	Run(ctx context.Context, input RunInput) (*RunResponse, error)

	// RunStream executes the agent loop and emits events on output. It closes
	// output when it returns.
	RunStream(ctx context.Context, input RunInput, output chan<- Event) error
}

// Display controls how answers are presented
type Display struct {
	ShowToolCalls bool `json:"show_tool_calls"`
	Markdown      bool `json:"markdown"`
}

// Config defines an agent
type Config struct {
	ID          string
	Name        string
	Role        string
	Description string
	Model       llm.ModelRef

	// Tools are the agent's toolkits in declaration order
	Tools []tools.Toolkit

	Display      Display
	Instructions []string

	MaxIterations int
	Timeout       time.Duration

	// HistoryMessages is how many session messages are replayed to the
	// model. Zero means DefaultHistoryMessages, negative disables replay.
	HistoryMessages int
}

// SystemPrompt renders the system message sent before every conversation
func (c Config) SystemPrompt() string {
	var b strings.Builder
	if c.Description != "" {
		b.WriteString(c.Description)
		b.WriteString("\n")
	}
	if c.Role != "" {
		fmt.Fprintf(&b, "Your role is: %s\n", c.Role)
	}
	if len(c.Instructions) > 0 {
		b.WriteString("\nInstructions:\n")
		for _, in := range c.Instructions {
			fmt.Fprintf(&b, "- %s\n", in)
		}
	}
	if c.Display.Markdown {
		b.WriteString("\nUse markdown to format your answers.\n")
	}
	return strings.TrimSpace(b.String())
}

// RunInput is one user turn
type RunInput struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// ToolCallRecord describes an executed tool call
type ToolCallRecord struct {
	ID        string        `json:"tool_call_id"`
	Name      string        `json:"tool_name"`
	Arguments string        `json:"tool_args"`
	Result    string        `json:"content,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// modelContent is what the model sees as the tool's output
func (r ToolCallRecord) modelContent() string {
	if r.Error != "" {
		return "error: " + r.Error
	}
	return r.Result
}

// RunResponse is the outcome of a run
type RunResponse struct {
	RunID     string           `json:"run_id"`
	AgentID   string           `json:"agent_id"`
	SessionID string           `json:"session_id"`
	Content   string           `json:"content"`
	Model     string           `json:"model"`
	ToolCalls []ToolCallRecord `json:"tools,omitempty"`
	Usage     *llm.Usage       `json:"metrics,omitempty"`
	CreatedAt int64            `json:"created_at"`
}

// EventType names a run stream event
type EventType string

const (
	EventRunStarted        EventType = "RunStarted"
	EventToolCallStarted   EventType = "ToolCallStarted"
	EventToolCallCompleted EventType = "ToolCallCompleted"
	EventRunResponse       EventType = "RunResponse"
	EventRunCompleted      EventType = "RunCompleted"
	EventRunError          EventType = "RunError"
)

// Event is emitted by RunStream
type Event struct {
	Type      EventType       `json:"event"`
	RunID     string          `json:"run_id"`
	AgentID   string          `json:"agent_id"`
	SessionID string          `json:"session_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Tool      *ToolCallRecord `json:"tool,omitempty"`
	Response  *RunResponse    `json:"response,omitempty"`
	CreatedAt int64           `json:"created_at"`
}

// formatToolCall renders a call as name(k=v, ...) with keys sorted
func formatToolCall(name, arguments string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return fmt.Sprintf("%s(%s)", name, arguments)
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, args[k])
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

// withToolCalls prefixes content with one " - Running: ..." line per call
func withToolCalls(content string, records []ToolCallRecord) string {
	if len(records) == 0 {
		return content
	}
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, " - Running: %s\n", formatToolCall(r.Name, r.Arguments))
	}
	b.WriteString("\n")
	b.WriteString(content)
	return b.String()
}

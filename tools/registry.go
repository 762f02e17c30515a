package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	obs "github.com/KamdynS/agent-playground/observability"
)

// Tool defines the interface for agent tools
type Tool interface {
	// Name returns the tool's name as the model sees it
	Name() string

	// Description returns a human-readable description of what the tool does
	Description() string

	// Execute runs the tool with the JSON arguments chosen by the model
	Execute(ctx context.Context, input string) (string, error)

	// Schema returns the JSON schema for the tool's arguments
	Schema() map[string]any
}

// Toolkit is a named external capability with a fixed set of enabled
// features. Each enabled feature contributes one or more tools.
type Toolkit interface {
	// Name identifies the toolkit, e.g. "duckduckgo"
	Name() string

	// Features reports every known feature and whether it is enabled
	Features() map[string]bool

	// Tools returns the tools of the enabled features in a stable order
	Tools() []Tool
}

// Registry manages a collection of tools available to an agent
type Registry interface {
	// Register adds a tool to the registry
	Register(tool Tool) error

	// Get retrieves a tool by name
	Get(name string) (Tool, bool)

	// List returns tool names in registration order
	List() []string

	// Execute runs a tool by name with the given input
	Execute(ctx context.Context, name string, input string) (string, error)
}

// DefaultRegistry is an in-memory registry that preserves registration order
type DefaultRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a new DefaultRegistry
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		tools: make(map[string]Tool),
	}
}

// Register implements Registry interface
func (r *DefaultRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// RegisterToolkit registers every tool of kit
func (r *DefaultRegistry) RegisterToolkit(kit Toolkit) error {
	for _, tool := range kit.Tools() {
		if err := r.Register(tool); err != nil {
			return fmt.Errorf("toolkit %s: %w", kit.Name(), err)
		}
	}
	return nil
}

// Get implements Registry interface
func (r *DefaultRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List implements Registry interface
func (r *DefaultRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Tools returns the registered tools in registration order
func (r *DefaultRegistry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// Execute implements Registry interface
func (r *DefaultRegistry) Execute(ctx context.Context, name string, input string) (string, error) {
	tool, exists := r.Get(name)
	if !exists {
		return "", fmt.Errorf("tool %s not found", name)
	}

	start := time.Now()
	span, ctx := obs.TracerImpl.StartSpan(ctx, "tool.execute")
	span.SetAttribute(obs.AttrToolName, name)
	defer span.End()

	result, err := tool.Execute(ctx, input)
	latency := time.Since(start)

	labels := map[string]string{
		"tool_name": name,
	}
	obs.MetricsImpl.RecordLatency(latency, labels)
	if err != nil {
		obs.MetricsImpl.RecordError("tool_error", labels)
		span.SetStatus(obs.StatusCodeError, err.Error())
		return "", err
	}
	span.SetStatus(obs.StatusCodeOk, "")
	return result, nil
}

// Features builds a feature map from defaults and overrides. Unknown
// override keys are reported as an error.
func Features(defaults map[string]bool, overrides map[string]bool) (map[string]bool, error) {
	out := make(map[string]bool, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		if _, ok := defaults[k]; !ok {
			return nil, fmt.Errorf("unknown feature %q", k)
		}
		out[k] = v
	}
	return out, nil
}

// Package preset defines the playground's agents and builds them from
// definitions, either the built-in ones or a YAML file.
package preset

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/KamdynS/agent-playground/agent/core"
	"github.com/KamdynS/agent-playground/llm"
	"github.com/KamdynS/agent-playground/llm/provider"
	"github.com/KamdynS/agent-playground/memory"
	"github.com/KamdynS/agent-playground/tools"
	"github.com/KamdynS/agent-playground/tools/duckduckgo"
	"github.com/KamdynS/agent-playground/tools/yfinance"
)

// DefaultModel is the model both built-in agents run on
var DefaultModel = llm.ModelRef{Provider: llm.ProviderGroq, ID: llm.ModelLlama33Versatile}

// ToolSpec selects a toolkit and overrides its feature switches
type ToolSpec struct {
	Name     string          `yaml:"name"`
	Features map[string]bool `yaml:"features,omitempty"`
}

// Definition describes an agent independently of any credentials
type Definition struct {
	ID            string        `yaml:"id,omitempty"`
	Name          string        `yaml:"name"`
	Role          string        `yaml:"role"`
	Description   string        `yaml:"description,omitempty"`
	Model         llm.ModelRef  `yaml:"-"`
	Tools         []ToolSpec    `yaml:"tools"`
	Instructions  []string      `yaml:"instructions"`
	ShowToolCalls bool          `yaml:"show_tool_calls"`
	Markdown      bool          `yaml:"markdown"`
	MaxIterations int           `yaml:"max_iterations,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
}

// Deps are what agents need at build time. Toolkit configs carry endpoint
// overrides; their Features are replaced by each ToolSpec.
type Deps struct {
	Credentials provider.Credentials
	Sessions    memory.SessionStore
	Middleware  []core.Middleware
	DuckDuckGo  duckduckgo.Config
	YFinance    yfinance.Config
}

// WebSearchDefinition is the web search agent
func WebSearchDefinition() Definition {
	return Definition{
		Name:          "Web Search Agent",
		Role:          "Search the web for information",
		Model:         DefaultModel,
		Tools:         []ToolSpec{{Name: duckduckgo.Name}},
		Instructions:  []string{"Always include sources in your response"},
		ShowToolCalls: true,
		Markdown:      true,
	}
}

// FinanceDefinition is the finance agent
func FinanceDefinition() Definition {
	return Definition{
		Name:  "Finance AI Agent",
		Role:  "Analyze stocks and provide financial recommendations",
		Model: DefaultModel,
		Tools: []ToolSpec{{
			Name: yfinance.Name,
			Features: map[string]bool{
				yfinance.FeatureStockPrice:             true,
				yfinance.FeatureAnalystRecommendations: true,
				yfinance.FeatureStockFundamentals:      true,
				yfinance.FeatureCompanyNews:            true,
			},
		}},
		Instructions:  []string{"Use tables to display the data"},
		ShowToolCalls: true,
		Markdown:      true,
	}
}

// Defaults returns the built-in definitions: web search, then finance
func Defaults() []Definition {
	return []Definition{WebSearchDefinition(), FinanceDefinition()}
}

// WebSearchAgent builds the web search agent
func WebSearchAgent(deps Deps) (*core.ChatAgent, error) {
	return BuildAgent(WebSearchDefinition(), deps)
}

// FinanceAgent builds the finance agent
func FinanceAgent(deps Deps) (*core.ChatAgent, error) {
	return BuildAgent(FinanceDefinition(), deps)
}

// BuildToolkit maps a toolkit name to its constructor
func BuildToolkit(spec ToolSpec, deps Deps) (tools.Toolkit, error) {
	switch spec.Name {
	case duckduckgo.Name:
		cfg := deps.DuckDuckGo
		cfg.Features = spec.Features
		return duckduckgo.New(cfg)
	case yfinance.Name:
		cfg := deps.YFinance
		cfg.Features = spec.Features
		return yfinance.New(cfg)
	default:
		return nil, fmt.Errorf("unknown toolkit %q", spec.Name)
	}
}

// Slug derives an agent id from its name, e.g. "web-search-agent". Ids stay
// stable across rebuilds so stored sessions survive a reload.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// BuildAgent constructs one agent. The model client is resolved on first
// use, so missing credentials do not fail the build. Without an explicit id
// the agent is identified by Slug(def.Name).
func BuildAgent(def Definition, deps Deps) (*core.ChatAgent, error) {
	if def.ID == "" {
		def.ID = Slug(def.Name)
	}
	kits := make([]tools.Toolkit, 0, len(def.Tools))
	for _, spec := range def.Tools {
		kit, err := BuildToolkit(spec, deps)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", def.Name, err)
		}
		kits = append(kits, kit)
	}

	return core.NewChatAgent(core.ChatConfig{
		Model:      provider.New(def.Model, deps.Credentials),
		Sessions:   deps.Sessions,
		Middleware: deps.Middleware,
		Config: core.Config{
			ID:            def.ID,
			Name:          def.Name,
			Role:          def.Role,
			Description:   def.Description,
			Model:         def.Model,
			Tools:         kits,
			Display:       core.Display{ShowToolCalls: def.ShowToolCalls, Markdown: def.Markdown},
			Instructions:  def.Instructions,
			MaxIterations: def.MaxIterations,
			Timeout:       def.Timeout,
		},
	})
}

// Build constructs agents in definition order
func Build(defs []Definition, deps Deps) ([]core.Agent, error) {
	agents := make([]core.Agent, 0, len(defs))
	for _, def := range defs {
		a, err := BuildAgent(def, deps)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

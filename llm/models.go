package llm

import (
	"fmt"
	"sort"
	"strings"
)

// Provider represents LLM providers
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGroq      Provider = "groq"
)

// ModelRef selects a model on a provider. It is the model field of an agent
// definition and is resolved to a Client only when the agent runs.
type ModelRef struct {
	Provider Provider `json:"provider" yaml:"provider"`
	ID       string   `json:"name" yaml:"id"`
}

// ParseModelRef parses "provider:model-id". A bare model id is looked up in
// the catalog to find its provider.
func ParseModelRef(s string) (ModelRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModelRef{}, fmt.Errorf("empty model reference")
	}
	if provider, id, ok := strings.Cut(s, ":"); ok {
		if provider == "" || id == "" {
			return ModelRef{}, fmt.Errorf("invalid model reference %q", s)
		}
		return ModelRef{Provider: Provider(strings.ToLower(provider)), ID: id}, nil
	}
	m, err := GetModel(s)
	if err != nil {
		return ModelRef{}, fmt.Errorf("model %q has no provider prefix: %w", s, err)
	}
	return ModelRef{Provider: m.Provider, ID: m.Name}, nil
}

// String returns the "provider:id" form
func (r ModelRef) String() string {
	return string(r.Provider) + ":" + r.ID
}

// Model describes a catalog model
type Model struct {
	Provider     Provider     `json:"provider"`
	Name         string       `json:"name"`
	DisplayName  string       `json:"display_name"`
	ContextSize  int          `json:"context_size"`
	InputCost    float64      `json:"input_cost"`  // USD per 1M input tokens
	OutputCost   float64      `json:"output_cost"` // USD per 1M output tokens
	Capabilities Capabilities `json:"capabilities"`
}

// Capabilities represents what a model can do
type Capabilities struct {
	ToolUse   bool `json:"tool_use"`
	Vision    bool `json:"vision"`
	Streaming bool `json:"streaming"`
}

// OpenAI Models
const (
	ModelGPT4o     = "gpt-4o"
	ModelGPT4oMini = "gpt-4o-mini"
	ModelGPT4Turbo = "gpt-4-turbo"
)

// Anthropic Models
const (
	ModelClaudeSonnet4  = "claude-sonnet-4-20250514"
	ModelClaude35Sonnet = "claude-3-5-sonnet-20241022"
	ModelClaude35Haiku  = "claude-3-5-haiku-20241022"
)

// Groq Models
const (
	ModelLlama33Versatile = "llama-3.3-70b-versatile"
	ModelLlama31Instant   = "llama-3.1-8b-instant"
	ModelGemma2           = "gemma2-9b-it"
	ModelMixtral          = "mixtral-8x7b-32768"
)

var allCaps = Capabilities{ToolUse: true, Vision: true, Streaming: true}
var textCaps = Capabilities{ToolUse: true, Streaming: true}

// AvailableModels contains all catalog models keyed by name
var AvailableModels = map[string]Model{
	ModelGPT4o:     {Provider: ProviderOpenAI, Name: ModelGPT4o, DisplayName: "GPT-4o", ContextSize: 128000, InputCost: 2.5, OutputCost: 10.0, Capabilities: allCaps},
	ModelGPT4oMini: {Provider: ProviderOpenAI, Name: ModelGPT4oMini, DisplayName: "GPT-4o Mini", ContextSize: 128000, InputCost: 0.15, OutputCost: 0.60, Capabilities: allCaps},
	ModelGPT4Turbo: {Provider: ProviderOpenAI, Name: ModelGPT4Turbo, DisplayName: "GPT-4 Turbo", ContextSize: 128000, InputCost: 10.0, OutputCost: 30.0, Capabilities: allCaps},

	ModelClaudeSonnet4:  {Provider: ProviderAnthropic, Name: ModelClaudeSonnet4, DisplayName: "Claude Sonnet 4", ContextSize: 200000, InputCost: 3.0, OutputCost: 15.0, Capabilities: allCaps},
	ModelClaude35Sonnet: {Provider: ProviderAnthropic, Name: ModelClaude35Sonnet, DisplayName: "Claude 3.5 Sonnet", ContextSize: 200000, InputCost: 3.0, OutputCost: 15.0, Capabilities: allCaps},
	ModelClaude35Haiku:  {Provider: ProviderAnthropic, Name: ModelClaude35Haiku, DisplayName: "Claude 3.5 Haiku", ContextSize: 200000, InputCost: 0.80, OutputCost: 4.0, Capabilities: allCaps},

	ModelLlama33Versatile: {Provider: ProviderGroq, Name: ModelLlama33Versatile, DisplayName: "Llama 3.3 70B Versatile", ContextSize: 128000, InputCost: 0.59, OutputCost: 0.79, Capabilities: textCaps},
	ModelLlama31Instant:   {Provider: ProviderGroq, Name: ModelLlama31Instant, DisplayName: "Llama 3.1 8B Instant", ContextSize: 128000, InputCost: 0.05, OutputCost: 0.08, Capabilities: textCaps},
	ModelGemma2:           {Provider: ProviderGroq, Name: ModelGemma2, DisplayName: "Gemma 2 9B", ContextSize: 8192, InputCost: 0.20, OutputCost: 0.20, Capabilities: textCaps},
	ModelMixtral:          {Provider: ProviderGroq, Name: ModelMixtral, DisplayName: "Mixtral 8x7B", ContextSize: 32768, InputCost: 0.24, OutputCost: 0.24, Capabilities: textCaps},
}

// GetModel returns model metadata for a given model name
func GetModel(name string) (Model, error) {
	model, exists := AvailableModels[name]
	if !exists {
		return Model{}, fmt.Errorf("unknown model: %s", name)
	}
	return model, nil
}

// GetModelsByProvider returns the catalog models of a provider sorted by name
func GetModelsByProvider(provider Provider) []Model {
	var models []Model
	for _, model := range AvailableModels {
		if model.Provider == provider {
			models = append(models, model)
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models
}

// String returns a human-readable representation of the model
func (m Model) String() string {
	return fmt.Sprintf("%s (%s) - %s", m.DisplayName, m.Name, m.Provider)
}

// EstimateCost estimates the cost for given token counts
func (m Model) EstimateCost(inputTokens, outputTokens int) float64 {
	inputCost := (float64(inputTokens) / 1000000) * m.InputCost
	outputCost := (float64(outputTokens) / 1000000) * m.OutputCost
	return inputCost + outputCost
}

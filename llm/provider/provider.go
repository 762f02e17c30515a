// Package provider resolves a model selector to a concrete llm.Client.
//
// Clients returned by New are built on first use, so an agent can be
// constructed before credentials exist; a missing key or an unknown model
// surfaces as an *llm.LLMError from the first call.
package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/KamdynS/agent-playground/llm"
	"github.com/KamdynS/agent-playground/llm/anthropic"
	"github.com/KamdynS/agent-playground/llm/openai"
)

// Credentials carries provider API keys and optional endpoint overrides.
type Credentials struct {
	GroqAPIKey       string
	GroqBaseURL      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string

	// RetryConfig applies to every client; zero means provider defaults.
	RetryConfig llm.RetryConfig
}

// New returns a lazily constructed client for ref.
func New(ref llm.ModelRef, creds Credentials) llm.Client {
	return &lazyClient{ref: ref, creds: creds}
}

type lazyClient struct {
	ref   llm.ModelRef
	creds Credentials

	once   sync.Once
	client llm.Client
	err    error
}

func (l *lazyClient) resolve() (llm.Client, error) {
	l.once.Do(func() {
		l.client, l.err = build(l.ref, l.creds)
	})
	return l.client, l.err
}

func build(ref llm.ModelRef, creds Credentials) (llm.Client, error) {
	switch ref.Provider {
	case llm.ProviderGroq:
		return openai.NewClient(openai.Config{
			Provider:    llm.ProviderGroq,
			APIKey:      creds.GroqAPIKey,
			BaseURL:     creds.GroqBaseURL,
			Model:       ref.ID,
			RetryConfig: creds.RetryConfig,
		})
	case llm.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			Provider:    llm.ProviderOpenAI,
			APIKey:      creds.OpenAIAPIKey,
			BaseURL:     creds.OpenAIBaseURL,
			Model:       ref.ID,
			RetryConfig: creds.RetryConfig,
		})
	case llm.ProviderAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:      creds.AnthropicAPIKey,
			BaseURL:     creds.AnthropicBaseURL,
			Model:       ref.ID,
			RetryConfig: creds.RetryConfig,
		})
	default:
		return nil, llm.NewLLMError(ref.Provider, llm.ErrorTypeUnsupported,
			fmt.Sprintf("unsupported model provider %q", ref.Provider))
	}
}

func (l *lazyClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	c, err := l.resolve()
	if err != nil {
		return nil, err
	}
	return c.Chat(ctx, req)
}

func (l *lazyClient) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	c, err := l.resolve()
	if err != nil {
		return nil, err
	}
	return c.Completion(ctx, prompt)
}

func (l *lazyClient) Stream(ctx context.Context, req *llm.ChatRequest, output chan<- *llm.Response) error {
	c, err := l.resolve()
	if err != nil {
		close(output)
		return err
	}
	return c.Stream(ctx, req, output)
}

func (l *lazyClient) Model() string { return l.ref.ID }

func (l *lazyClient) Provider() llm.Provider { return l.ref.Provider }

// Validate builds the underlying client and reports its configuration error.
func (l *lazyClient) Validate() error {
	c, err := l.resolve()
	if err != nil {
		return err
	}
	return c.Validate()
}

var _ llm.Client = (*lazyClient)(nil)

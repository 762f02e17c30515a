package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KamdynS/agent-playground/llm"
	"github.com/sashabaranov/go-openai"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint
const GroqBaseURL = "https://api.groq.com/openai/v1"

// Client implements the llm.Client interface for OpenAI-compatible APIs
type Client struct {
	client  *openai.Client
	config  Config
	retrier *llm.Retrier
}

// Config holds OpenAI-specific configuration
type Config struct {
	APIKey       string          `json:"api_key"`
	Model        string          `json:"model"` // e.g., "gpt-4o", "llama-3.3-70b-versatile"
	BaseURL      string          `json:"base_url,omitempty"`
	Temperature  float64         `json:"temperature,omitempty"`
	MaxTokens    int             `json:"max_tokens,omitempty"`
	Timeout      time.Duration   `json:"timeout,omitempty"`
	RetryConfig  llm.RetryConfig `json:"retry_config,omitempty"`
	Organization string          `json:"organization,omitempty"`
	// Provider labels responses and errors. Defaults to openai; Groq and other
	// compatible backends set their own name and BaseURL.
	Provider llm.Provider `json:"provider,omitempty"`
}

// NewClient creates a new OpenAI-compatible client
func NewClient(config Config) (*Client, error) {
	if config.Provider == "" {
		config.Provider = llm.ProviderOpenAI
	}
	if config.Model == "" {
		config.Model = llm.ModelGPT4oMini
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.BaseURL == "" && config.Provider == llm.ProviderGroq {
		config.BaseURL = GroqBaseURL
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RetryConfig.MaxRetries == 0 {
		config.RetryConfig = llm.DefaultRetryConfig()
	}

	oaiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oaiConfig.BaseURL = config.BaseURL
	}
	if config.Organization != "" {
		oaiConfig.OrgID = config.Organization
	}
	oaiConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Client{
		client:  openai.NewClientWithConfig(oaiConfig),
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig),
	}, nil
}

func validateConfig(config Config) error {
	if config.APIKey == "" {
		return llm.NewLLMError(config.Provider, llm.ErrorTypeAuthentication, "API key is required")
	}

	// Catalog models must belong to this provider; unknown ids are left to the API.
	if model, err := llm.GetModel(config.Model); err == nil && model.Provider != config.Provider {
		return llm.NewLLMError(config.Provider, llm.ErrorTypeInvalidModel,
			fmt.Sprintf("model %s is a %s model", config.Model, model.Provider))
	}

	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// Chat implements llm.Client interface
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	start := time.Now()

	result, err := llm.Execute(c.retrier, ctx, func(ctx context.Context, attempt int) (*llm.Response, error) {
		return c.chat(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	result.Latency = time.Since(start)
	result.Timestamp = start
	return result, nil
}

func (c *Client) chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	oaiReq := c.buildRequest(req)

	resp, err := c.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return nil, c.convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewLLMError(c.config.Provider, llm.ErrorTypeUnknown, "no choices returned")
	}

	choice := resp.Choices[0]

	var toolCalls []llm.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: llm.Function{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	var usage *llm.Usage
	if resp.Usage.TotalTokens > 0 {
		modelInfo, _ := llm.GetModel(oaiReq.Model)
		usage = &llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
			Cost:         modelInfo.EstimateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		}
	}

	return &llm.Response{
		Content:      choice.Message.Content,
		Role:         "assistant",
		Model:        oaiReq.Model,
		Provider:     c.config.Provider,
		Usage:        usage,
		FinishReason: string(choice.FinishReason),
		ToolCalls:    toolCalls,
		Meta: map[string]string{
			"id":      resp.ID,
			"created": fmt.Sprintf("%d", resp.Created),
		},
	}, nil
}

// buildRequest converts an llm.ChatRequest to the SDK request shape
func (c *Client) buildRequest(req *llm.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	oaiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(c.config.Temperature),
		MaxTokens:   c.config.MaxTokens,
		Stop:        req.Stop,
		User:        req.User,
	}
	if req.Temperature != nil {
		oaiReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		oaiReq.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		oaiReq.TopP = float32(*req.TopP)
	}

	if len(req.Tools) > 0 {
		oaiReq.Tools = make([]openai.Tool, len(req.Tools))
		for i, tool := range req.Tools {
			oaiReq.Tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			}
		}
		if req.ToolChoice != nil {
			oaiReq.ToolChoice = req.ToolChoice
		}
	}
	return oaiReq
}

func convertMessage(msg llm.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{Content: msg.Content, Name: msg.Name}

	switch msg.Role {
	case "system":
		out.Role = openai.ChatMessageRoleSystem
	case "assistant":
		out.Role = openai.ChatMessageRoleAssistant
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	case "tool":
		out.Role = openai.ChatMessageRoleTool
		out.ToolCallID = msg.ToolCallID
	default:
		out.Role = openai.ChatMessageRoleUser
	}
	return out
}

// Completion implements llm.Client interface
func (c *Client) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	return c.Chat(ctx, &llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
}

// Stream implements llm.Client interface. Only the connection attempt is
// retried; once deltas have been delivered a failure is returned as is.
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, output chan<- *llm.Response) error {
	defer close(output)

	oaiReq := c.buildRequest(req)
	oaiReq.Stream = true

	stream, err := llm.Execute(c.retrier, ctx, func(ctx context.Context, attempt int) (*openai.ChatCompletionStream, error) {
		s, err := c.client.CreateChatCompletionStream(ctx, oaiReq)
		if err != nil {
			return nil, c.convertError(err)
		}
		return s, nil
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	start := time.Now()
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return c.convertError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		resp := &llm.Response{
			Content:      choice.Delta.Content,
			Role:         "assistant",
			Model:        oaiReq.Model,
			Provider:     c.config.Provider,
			FinishReason: string(choice.FinishReason),
			Latency:      time.Since(start),
			Timestamp:    start,
			Meta:         map[string]string{"id": chunk.ID, "streaming": "true"},
		}

		select {
		case output <- resp:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// convertError converts SDK errors to LLM errors
func (c *Client) convertError(err error) error {
	if err == nil {
		return nil
	}
	provider := c.config.Provider

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		llmErr := llm.ParseHTTPError(provider, apiErr.HTTPStatusCode, apiErr.Message)
		if code, ok := apiErr.Code.(string); ok {
			llmErr.Code = code
		}
		llmErr.Model = c.config.Model
		llmErr.Cause = err
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests && strings.Contains(strings.ToLower(apiErr.Message), "try again in") {
			llmErr.RetryAfter = 60
		}
		return llmErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		llmErr := llm.ParseHTTPError(provider, reqErr.HTTPStatusCode, string(reqErr.Body))
		llmErr.Model = c.config.Model
		llmErr.Cause = err
		return llmErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewLLMErrorWithCause(provider, llm.ErrorTypeTimeout, "request timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return llm.NewLLMErrorWithCause(provider, llm.ErrorTypeUnknown, "request cancelled", err)
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection") || strings.Contains(lower, "network") {
		return llm.NewLLMErrorWithCause(provider, llm.ErrorTypeConnectionError, "connection error", err)
	}

	return llm.NewLLMErrorWithCause(provider, llm.ErrorTypeUnknown, err.Error(), err)
}

// Model implements llm.Client interface
func (c *Client) Model() string {
	return c.config.Model
}

// Provider implements llm.Client interface
func (c *Client) Provider() llm.Provider {
	return c.config.Provider
}

// Validate implements llm.Client interface
func (c *Client) Validate() error {
	return validateConfig(c.config)
}

var _ llm.Client = (*Client)(nil)

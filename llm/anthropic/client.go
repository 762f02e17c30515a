package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/KamdynS/agent-playground/llm"
	"github.com/liushuangls/go-anthropic/v2"
)

// Client implements the llm.Client interface for Anthropic Claude
type Client struct {
	client  *anthropic.Client
	config  Config
	retrier *llm.Retrier
}

// Config holds Anthropic-specific configuration
type Config struct {
	APIKey      string          `json:"api_key"`
	Model       string          `json:"model"` // e.g., "claude-3-5-sonnet-20241022"
	BaseURL     string          `json:"base_url,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`
	RetryConfig llm.RetryConfig `json:"retry_config,omitempty"`
}

// NewClient creates a new Anthropic client
func NewClient(config Config) (*Client, error) {
	if config.Model == "" {
		config.Model = llm.ModelClaude35Haiku
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
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

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
	}

	return &Client{
		client:  anthropic.NewClient(config.APIKey, opts...),
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig),
	}, nil
}

func validateConfig(config Config) error {
	if config.APIKey == "" {
		return llm.NewLLMError(llm.ProviderAnthropic, llm.ErrorTypeAuthentication, "API key is required")
	}
	if model, err := llm.GetModel(config.Model); err == nil && model.Provider != llm.ProviderAnthropic {
		return llm.NewLLMError(llm.ProviderAnthropic, llm.ErrorTypeInvalidModel,
			fmt.Sprintf("model %s is a %s model", config.Model, model.Provider))
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
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
	anthReq := c.buildRequest(req)

	resp, err := c.client.CreateMessages(ctx, anthReq)
	if err != nil {
		return nil, c.convertError(err)
	}
	if len(resp.Content) == 0 {
		return nil, llm.NewLLMError(llm.ProviderAnthropic, llm.ErrorTypeUnknown, "no content returned")
	}

	var content strings.Builder
	var toolCalls []llm.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				content.WriteString(*block.Text)
			}
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse == nil {
				continue
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   block.MessageContentToolUse.ID,
				Type: "function",
				Function: llm.Function{
					Name:      block.MessageContentToolUse.Name,
					Arguments: string(block.MessageContentToolUse.Input),
				},
			})
		}
	}

	var usage *llm.Usage
	if resp.Usage.OutputTokens > 0 {
		modelInfo, _ := llm.GetModel(string(anthReq.Model))
		usage = &llm.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
			Cost:         modelInfo.EstimateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		}
	}

	return &llm.Response{
		Content:      content.String(),
		Role:         "assistant",
		Model:        string(anthReq.Model),
		Provider:     llm.ProviderAnthropic,
		Usage:        usage,
		FinishReason: string(resp.StopReason),
		ToolCalls:    toolCalls,
		Meta:         map[string]string{"id": resp.ID},
	}, nil
}

// buildRequest converts an llm.ChatRequest. System messages are folded into
// the system prompt; consecutive tool results are merged into one user turn.
func (c *Client) buildRequest(req *llm.ChatRequest) anthropic.MessagesRequest {
	systemPrompt := req.SystemPrompt
	messages := make([]anthropic.Message, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		case "assistant":
			var blocks []anthropic.MessageContent
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseMessageContent(tc.ID, tc.Function.Name, input))
			}
			messages = append(messages, anthropic.Message{Role: anthropic.RoleAssistant, Content: blocks})
		case "tool":
			result := anthropic.NewToolResultMessageContent(msg.ToolCallID, msg.Content, strings.HasPrefix(msg.Content, "error:"))
			if n := len(messages); n > 0 && messages[n-1].Role == anthropic.RoleUser && isToolResultTurn(messages[n-1]) {
				messages[n-1].Content = append(messages[n-1].Content, result)
				continue
			}
			messages = append(messages, anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{result}})
		default:
			messages = append(messages, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
		}
	}

	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	anthReq := anthropic.MessagesRequest{
		Model:         anthropic.Model(model),
		Messages:      messages,
		System:        systemPrompt,
		MaxTokens:     c.config.MaxTokens,
		StopSequences: req.Stop,
	}

	temp := float32(c.config.Temperature)
	if req.Temperature != nil {
		temp = float32(*req.Temperature)
	}
	anthReq.Temperature = &temp

	if req.MaxTokens != nil {
		anthReq.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		p := float32(*req.TopP)
		anthReq.TopP = &p
	}

	for _, tool := range req.Tools {
		schema := tool.Function.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		anthReq.Tools = append(anthReq.Tools, anthropic.ToolDefinition{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}
	return anthReq
}

func isToolResultTurn(m anthropic.Message) bool {
	for _, block := range m.Content {
		if block.Type != anthropic.MessagesContentTypeToolResult {
			return false
		}
	}
	return len(m.Content) > 0
}

// Completion implements llm.Client interface
func (c *Client) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	return c.Chat(ctx, &llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
}

// Stream implements llm.Client interface
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, output chan<- *llm.Response) error {
	defer close(output)

	start := time.Now()
	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	streamReq := anthropic.MessagesStreamRequest{
		MessagesRequest: c.buildRequest(req),
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			if data.Delta.Text == nil || *data.Delta.Text == "" {
				return
			}
			resp := &llm.Response{
				Content:   *data.Delta.Text,
				Role:      "assistant",
				Model:     model,
				Provider:  llm.ProviderAnthropic,
				Latency:   time.Since(start),
				Timestamp: start,
				Meta:      map[string]string{"streaming": "true"},
			}
			select {
			case output <- resp:
			case <-ctx.Done():
			}
		},
	}

	if _, err := c.client.CreateMessagesStream(ctx, streamReq); err != nil {
		return c.convertError(err)
	}
	return ctx.Err()
}

// convertError converts Anthropic SDK errors to LLM errors
func (c *Client) convertError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		errType := llm.ErrorTypeUnknown
		switch string(apiErr.Type) {
		case "authentication_error":
			errType = llm.ErrorTypeAuthentication
		case "permission_error":
			errType = llm.ErrorTypePermission
		case "not_found_error":
			errType = llm.ErrorTypeNotFound
		case "invalid_request_error":
			errType = llm.ErrorTypeInvalidRequest
		case "rate_limit_error":
			errType = llm.ErrorTypeRateLimit
		case "api_error", "overloaded_error":
			errType = llm.ErrorTypeServerError
		}
		llmErr := llm.NewLLMErrorWithCause(llm.ProviderAnthropic, errType, apiErr.Message, err)
		llmErr.Code = string(apiErr.Type)
		llmErr.Model = c.config.Model
		return llmErr
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderAnthropic, reqErr.StatusCode, reqErr.Error())
		llmErr.Cause = err
		return llmErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeTimeout, "request timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeUnknown, "request cancelled", err)
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection") || strings.Contains(lower, "network") {
		return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeConnectionError, "connection error", err)
	}

	return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeUnknown, err.Error(), err)
}

// Model implements llm.Client interface
func (c *Client) Model() string {
	return c.config.Model
}

// Provider implements llm.Client interface
func (c *Client) Provider() llm.Provider {
	return llm.ProviderAnthropic
}

// Validate implements llm.Client interface
func (c *Client) Validate() error {
	return validateConfig(c.config)
}

var _ llm.Client = (*Client)(nil)

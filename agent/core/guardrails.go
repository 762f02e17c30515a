package core

import (
	"context"
	"errors"
	"strings"

	"github.com/KamdynS/agent-playground/llm"
)

// ErrBlocked is returned when guardrails reject a request
var ErrBlocked = errors.New("request blocked by guardrails")

// Middleware hooks into the run loop. A non-nil error aborts the run, except
// from the tool hooks where it becomes the tool's error result.
type Middleware interface {
	BeforeLLMCall(ctx context.Context, req *llm.ChatRequest) error
	AfterLLMResponse(ctx context.Context, resp *llm.Response) error
	BeforeToolExecute(ctx context.Context, toolName string, input string) error
	AfterToolExecute(ctx context.Context, toolName string, result string, execErr error) error
	AfterRun(ctx context.Context, resp *RunResponse) error
}

// SimpleGuardrails provides minimal input filtering and tool allow-listing.
type SimpleGuardrails struct {
	// Deny if any of these substrings appear in the user input
	DenySubstrings []string
	// Max input length in characters; longer input is truncated
	MaxInputChars int
	// Tools that may not run
	DenyTools []string
}

func (g *SimpleGuardrails) BeforeLLMCall(ctx context.Context, req *llm.ChatRequest) error {
	if req == nil || len(req.Messages) == 0 {
		return nil
	}
	last := &req.Messages[len(req.Messages)-1]
	if last.Role != "user" {
		return nil
	}
	if g.MaxInputChars > 0 {
		last.Content = truncateRunes(last.Content, g.MaxInputChars)
	}
	lower := strings.ToLower(last.Content)
	for _, s := range g.DenySubstrings {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return ErrBlocked
		}
	}
	return nil
}

// truncateRunes cuts s to at most n runes
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func (g *SimpleGuardrails) AfterLLMResponse(ctx context.Context, resp *llm.Response) error {
	return nil
}

func (g *SimpleGuardrails) BeforeToolExecute(ctx context.Context, toolName string, input string) error {
	for _, name := range g.DenyTools {
		if name == toolName {
			return errors.New("tool " + toolName + " is not permitted")
		}
	}
	return nil
}

func (g *SimpleGuardrails) AfterToolExecute(ctx context.Context, toolName string, result string, execErr error) error {
	return nil
}

func (g *SimpleGuardrails) AfterRun(ctx context.Context, resp *RunResponse) error { return nil }

var _ Middleware = (*SimpleGuardrails)(nil)

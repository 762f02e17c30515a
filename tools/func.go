package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FuncTool adapts a typed function into a Tool. Arguments are decoded from
// the model's JSON into In; the result is encoded back to JSON unless it is
// already a string.
type FuncTool[In any] struct {
	NameStr string
	Desc    string
	Params  map[string]any
	Fn      func(ctx context.Context, in In) (any, error)
}

// NewFunc creates a FuncTool
func NewFunc[In any](name, desc string, params map[string]any, fn func(ctx context.Context, in In) (any, error)) *FuncTool[In] {
	return &FuncTool[In]{NameStr: name, Desc: desc, Params: params, Fn: fn}
}

func (f *FuncTool[In]) Name() string        { return f.NameStr }
func (f *FuncTool[In]) Description() string { return f.Desc }

func (f *FuncTool[In]) Schema() map[string]any {
	if f.Params == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return f.Params
}

func (f *FuncTool[In]) Execute(ctx context.Context, input string) (string, error) {
	if f.Fn == nil {
		return "", fmt.Errorf("tool %s has no implementation", f.NameStr)
	}

	var in In
	if s := strings.TrimSpace(input); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &in); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", f.NameStr, err)
		}
	}

	out, err := f.Fn(ctx, in)
	if err != nil {
		return "", err
	}
	if s, ok := out.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", f.NameStr, err)
	}
	return string(b), nil
}

// Object builds a JSON schema object from property schemas.
func Object(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Prop builds a single property schema.
func Prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

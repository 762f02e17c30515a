package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dummyTool struct {
	name, desc string
	out        string
	err        error
}

func (d dummyTool) Name() string           { return d.name }
func (d dummyTool) Description() string    { return d.desc }
func (d dummyTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (d dummyTool) Execute(ctx context.Context, input string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.out + ":" + input, nil
}

type dummyKit struct {
	name  string
	tools []Tool
}

func (k dummyKit) Name() string              { return k.name }
func (k dummyKit) Features() map[string]bool { return map[string]bool{"all": true} }
func (k dummyKit) Tools() []Tool             { return k.tools }

func TestRegistryRegisterGetListExecute(t *testing.T) {
	r := NewRegistry()
	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		require.NoError(t, r.Register(dummyTool{name: n, out: "O" + n}))
	}
	require.Error(t, r.Register(dummyTool{name: "alpha"}))
	require.Error(t, r.Register(dummyTool{}))

	_, ok := r.Get("alpha")
	assert.True(t, ok)
	assert.Equal(t, names, r.List())
	require.Len(t, r.Tools(), 3)
	assert.Equal(t, "zeta", r.Tools()[0].Name())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := r.Execute(ctx, "mid", "in")
	require.NoError(t, err)
	assert.Equal(t, "Omid:in", out)
}

func TestRegistryExecuteErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "none", "x")
	require.Error(t, err)

	require.NoError(t, r.Register(dummyTool{name: "e", err: errors.New("boom")}))
	_, err = r.Execute(context.Background(), "e", "x")
	assert.EqualError(t, err, "boom")
}

func TestRegisterToolkit(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterToolkit(dummyKit{name: "a", tools: []Tool{dummyTool{name: "x"}, dummyTool{name: "y"}}}))

	err := r.RegisterToolkit(dummyKit{name: "b", tools: []Tool{dummyTool{name: "y"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "toolkit b")
	assert.Equal(t, []string{"x", "y"}, r.List())
}

func TestFeatures(t *testing.T) {
	defaults := map[string]bool{"search": true, "news": false}

	got, err := Features(defaults, map[string]bool{"news": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"search": true, "news": true}, got)
	assert.False(t, defaults["news"], "defaults must not be mutated")

	_, err = Features(defaults, map[string]bool{"images": true})
	assert.Error(t, err)
}

func TestFuncTool(t *testing.T) {
	type args struct {
		Symbol string `json:"symbol"`
		Limit  int    `json:"limit"`
	}
	tool := NewFunc("echo", "echoes", Object(map[string]any{"symbol": Prop("string", "ticker")}, "symbol"),
		func(ctx context.Context, in args) (any, error) {
			if in.Symbol == "" {
				return nil, errors.New("symbol is required")
			}
			return map[string]any{"symbol": in.Symbol, "limit": in.Limit}, nil
		})

	out, err := tool.Execute(context.Background(), `{"symbol":"NVDA","limit":3}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"NVDA","limit":3}`, out)

	_, err = tool.Execute(context.Background(), "")
	assert.EqualError(t, err, "symbol is required")

	_, err = tool.Execute(context.Background(), "{not json")
	assert.Error(t, err)

	assert.Equal(t, []string{"symbol"}, tool.Schema()["required"])
}

package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratagem-ai/stratagem/pkg/logging"
)

type fakeTool struct {
	name   string
	result *Result
}

func (f *fakeTool) Name() string                { return f.name }
func (f *fakeTool) Label() string               { return f.name }
func (f *fakeTool) Description() string         { return "fake tool for tests" }
func (f *fakeTool) RequiresApproval() bool      { return false }
func (f *fakeTool) Parameters() ParameterSchema { return ParameterSchema{Type: "object"} }

func (f *fakeTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	if f.result != nil {
		return f.result, nil
	}
	return &Result{Success: true}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(&fakeTool{name: "alpha"})

	got, ok := r.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", got.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(&fakeTool{name: "zeta"})
	r.Register(&fakeTool{name: "alpha"})
	r.Register(&fakeTool{name: "mid"})

	names := make([]string, 0, 3)
	for _, tl := range r.List() {
		names = append(names, tl.Name())
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
	assert.Equal(t, 3, r.Count())
}

func TestRegistryDuplicateOverwrites(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(&fakeTool{name: "dup", result: Fail("old")})
	r.Register(&fakeTool{name: "dup", result: Fail("new")})

	assert.Equal(t, 1, r.Count())
	res, err := r.Execute(context.Background(), "dup", nil)
	require.NoError(t, err)
	assert.Equal(t, "new", res.Error)
}

func TestRegistryIgnoresInvalidRegistrations(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(nil)
	r.Register(&fakeTool{name: "  "})
	assert.Equal(t, 0, r.Count())
}

func TestRegistryExecuteUnknown(t *testing.T) {
	r := NewRegistry(logging.Nop())
	_, err := r.Execute(context.Background(), "ghost", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool not found")
}

func TestRegistryExecuteCancelledContext(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(&fakeTool{name: "alpha"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Execute(ctx, "alpha", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToOpenAIFunctions(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(&fakeTool{name: "alpha"})

	defs := r.ToOpenAIFunctions()
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0]["type"])
	fn := defs[0]["function"].(map[string]any)
	assert.Equal(t, "alpha", fn["name"])
}

func TestResultJSON(t *testing.T) {
	assert.Equal(t, "{}", ResultJSON(nil))
	assert.Contains(t, ResultJSON(Fail("nope")), `"success":false`)
	assert.Contains(t, ResultJSON(Clarify("which one?")), `"needs_clarification":true`)
}

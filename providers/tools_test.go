package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/canvasflow/types"
)

func TestToolRegistry_Builtins(t *testing.T) {
	r := NewToolRegistry(nil)
	assert.Equal(t, []string{"calculator", "echo", "template"}, r.Names())
}

func TestToolRegistry_UnknownTool(t *testing.T) {
	r := NewToolRegistry(nil)
	_, err := r.Invoke(context.Background(), "shell", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrCapabilityUnavailable, types.GetErrorCode(err))
}

func TestToolRegistry_RegisterCustom(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register("constant", func(context.Context, map[string]any) (any, error) {
		return 7, nil
	})
	result, err := r.Invoke(context.Background(), "constant", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, result)
}

func TestCalculatorTool(t *testing.T) {
	r := NewToolRegistry(nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		inputs map[string]any
		want   float64
	}{
		{"add", map[string]any{"operation": "add", "a": 2, "b": 3}, 5},
		{"default is add", map[string]any{"a": 2, "b": 3}, 5},
		{"subtract", map[string]any{"operation": "subtract", "a": 10, "b": 4}, 6},
		{"multiply", map[string]any{"operation": "multiply", "a": 2.5, "b": 4}, 10},
		{"divide", map[string]any{"operation": "divide", "a": 9, "b": 3}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Invoke(ctx, "calculator", tt.inputs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}

	t.Run("division by zero", func(t *testing.T) {
		_, err := r.Invoke(ctx, "calculator", map[string]any{"operation": "divide", "a": 1, "b": 0})
		require.Error(t, err)
	})

	t.Run("non-numeric input", func(t *testing.T) {
		_, err := r.Invoke(ctx, "calculator", map[string]any{"a": "x", "b": 1})
		require.Error(t, err)
	})

	t.Run("unknown operation", func(t *testing.T) {
		_, err := r.Invoke(ctx, "calculator", map[string]any{"operation": "modulo", "a": 1, "b": 2})
		require.Error(t, err)
	})
}

func TestEchoTool(t *testing.T) {
	r := NewToolRegistry(nil)

	result, err := r.Invoke(context.Background(), "echo", map[string]any{"value": "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ping", result)

	inputs := map[string]any{"a": 1, "b": 2}
	result, err = r.Invoke(context.Background(), "echo", inputs)
	require.NoError(t, err)
	assert.Equal(t, inputs, result, "no value input echoes the whole map")
}

func TestTemplateTool(t *testing.T) {
	r := NewToolRegistry(nil)

	result, err := r.Invoke(context.Background(), "template", map[string]any{
		"template": "Hello {{name}}, score {{score}}",
		"name":     "world",
		"score":    9.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world, score 9.5", result)

	_, err = r.Invoke(context.Background(), "template", map[string]any{"template": 42})
	require.Error(t, err)
}

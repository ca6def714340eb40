package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/types"
)

// ToolFunc is one invokable tool.
type ToolFunc func(ctx context.Context, inputs map[string]any) (any, error)

// ToolRegistry 工具注册表：按名称解析并调用工具
// ToolRegistry implements workflow.ToolProvider. Registration is
// concurrency-safe; invoking an unregistered name returns
// CAPABILITY_UNAVAILABLE.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]ToolFunc
	logger *zap.Logger
}

// NewToolRegistry creates a registry preloaded with the built-in tools:
// calculator, echo and template. Arbitrary code execution is deliberately
// not offered.
func NewToolRegistry(logger *zap.Logger) *ToolRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &ToolRegistry{
		tools:  make(map[string]ToolFunc),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
	r.Register("calculator", calculatorTool)
	r.Register("echo", echoTool)
	r.Register("template", templateTool)
	return r
}

// Register adds or replaces a tool by name.
func (r *ToolRegistry) Register(name string, fn ToolFunc) {
	r.mu.Lock()
	r.tools[name] = fn
	r.mu.Unlock()
}

// Names returns the registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke implements workflow.ToolProvider.
func (r *ToolRegistry) Invoke(ctx context.Context, toolName string, inputs map[string]any) (any, error) {
	r.mu.RLock()
	fn, ok := r.tools[toolName]
	r.mu.RUnlock()

	if !ok {
		return nil, types.NewError(types.ErrCapabilityUnavailable,
			fmt.Sprintf("tool %q is not registered", toolName))
	}
	return fn(ctx, inputs)
}

// ============================================================
// Built-in tools
// ============================================================

// calculatorTool evaluates {operation, a, b}. Operations: add, subtract,
// multiply, divide.
func calculatorTool(_ context.Context, inputs map[string]any) (any, error) {
	a, ok := asNumber(inputs["a"])
	if !ok {
		return nil, fmt.Errorf("calculator: input %q is not a number", "a")
	}
	b, ok := asNumber(inputs["b"])
	if !ok {
		return nil, fmt.Errorf("calculator: input %q is not a number", "b")
	}

	op, _ := inputs["operation"].(string)
	switch op {
	case "add", "":
		return a + b, nil
	case "subtract":
		return a - b, nil
	case "multiply":
		return a * b, nil
	case "divide":
		if b == 0 {
			return nil, fmt.Errorf("calculator: division by zero")
		}
		return a / b, nil
	default:
		return nil, fmt.Errorf("calculator: unknown operation %q", op)
	}
}

// echoTool returns its "value" input unchanged, or the whole input map when
// no value is given.
func echoTool(_ context.Context, inputs map[string]any) (any, error) {
	if value, ok := inputs["value"]; ok {
		return value, nil
	}
	return inputs, nil
}

// templateTool substitutes {{key}} placeholders in "template" with the other
// inputs' string forms.
func templateTool(_ context.Context, inputs map[string]any) (any, error) {
	tmpl, ok := inputs["template"].(string)
	if !ok {
		return nil, fmt.Errorf("template: input %q must be a string", "template")
	}
	out := tmpl
	for key, value := range inputs {
		if key == "template" {
			continue
		}
		out = strings.ReplaceAll(out, "{{"+key+"}}", fmt.Sprintf("%v", value))
	}
	return out, nil
}

func asNumber(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	default:
		return 0, false
	}
}

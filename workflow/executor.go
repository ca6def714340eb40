package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/canvasflow/types"
)

// RunState is the mutable state threaded through node executors for the
// lifetime of one run. Values holds the input payload plus every node's
// result keyed by node id; Output collects what output nodes export.
type RunState struct {
	Values map[string]any
	Output map[string]any
}

// NewRunState creates run state seeded with the run's input payload.
func NewRunState(input map[string]any) *RunState {
	values := make(map[string]any, len(input)+4)
	for k, v := range input {
		values[k] = v
	}
	if input == nil {
		input = map[string]any{}
	}
	values["input"] = input
	return &RunState{
		Values: values,
		Output: make(map[string]any),
	}
}

// NodeExecutor executes one node kind against run state and returns the
// node's result payload. Errors are node-level: the coordinator records them
// in the trace instead of aborting the loop.
type NodeExecutor interface {
	Kind() NodeKind
	Execute(ctx context.Context, node Node, state *RunState) (any, error)
}

// executorSet is the closed dispatch table over the five node kinds, built
// once at coordinator construction. Adding a kind is a compile-time change
// here, not a runtime string match.
type executorSet map[NodeKind]NodeExecutor

func newExecutorSet(tools ToolProvider, agents AgentProvider, evaluator ConditionEvaluator) executorSet {
	return executorSet{
		KindInput:     &inputExecutor{},
		KindOutput:    &outputExecutor{},
		KindTool:      &toolExecutor{tools: tools},
		KindAgent:     &agentExecutor{agents: agents},
		KindCondition: &conditionExecutor{evaluator: evaluator},
	}
}

// resolve returns the executor for a node kind. Unknown kinds cannot reach
// here because BuildGraph rejects them, but the error path is kept explicit.
func (s executorSet) resolve(kind NodeKind) (NodeExecutor, error) {
	exec, ok := s[kind]
	if !ok {
		return nil, types.NewError(types.ErrNodeExecution, fmt.Sprintf("no executor for node kind %q", kind))
	}
	return exec, nil
}

// ============================================================
// input
// ============================================================

// inputExecutor copies the node's static payload into run state. Never errors.
type inputExecutor struct{}

func (*inputExecutor) Kind() NodeKind { return KindInput }

func (*inputExecutor) Execute(_ context.Context, node Node, state *RunState) (any, error) {
	data := node.Config.Data
	if data == nil {
		data = map[string]any{}
	}
	for k, v := range data {
		state.Values[k] = v
	}
	state.Values[node.ID] = data
	return data, nil
}

// ============================================================
// output
// ============================================================

// outputExecutor copies named state values into the run's final output.
// With no keys configured it exports the node results accumulated so far.
// Never errors; missing keys export as nil.
type outputExecutor struct{}

func (*outputExecutor) Kind() NodeKind { return KindOutput }

func (*outputExecutor) Execute(_ context.Context, node Node, state *RunState) (any, error) {
	collected := make(map[string]any)
	if len(node.Config.Keys) == 0 {
		for k, v := range state.Values {
			collected[k] = v
		}
	} else {
		for _, key := range node.Config.Keys {
			collected[key] = state.Values[key]
		}
	}
	for k, v := range collected {
		state.Output[k] = v
	}
	state.Values[node.ID] = collected
	return collected, nil
}

// ============================================================
// tool
// ============================================================

// toolExecutor resolves a tool by name through the tool provider and invokes
// it with the node's declared input mapping. Input values of the form
// "$node_id" are resolved from run state before the call.
type toolExecutor struct {
	tools ToolProvider
}

func (*toolExecutor) Kind() NodeKind { return KindTool }

func (e *toolExecutor) Execute(ctx context.Context, node Node, state *RunState) (any, error) {
	if e.tools == nil {
		return nil, types.NewError(types.ErrCapabilityUnavailable, "tool provider not configured").WithNodeID(node.ID)
	}
	if node.Config.ToolName == "" {
		return nil, types.NewError(types.ErrNodeExecution, "tool node has no tool name").WithNodeID(node.ID)
	}

	inputs := resolveInputs(node.Config.Inputs, state)
	result, err := e.tools.Invoke(ctx, node.Config.ToolName, inputs)
	if err != nil {
		return nil, types.NewError(types.ErrNodeExecution,
			fmt.Sprintf("tool %q failed", node.Config.ToolName)).WithNodeID(node.ID).WithCause(err)
	}

	state.Values[node.ID] = result
	return result, nil
}

// resolveInputs substitutes "$key" string values with the corresponding run
// state value, leaving everything else untouched.
func resolveInputs(inputs map[string]any, state *RunState) map[string]any {
	resolved := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if ref, ok := v.(string); ok && strings.HasPrefix(ref, "$") {
			if value, exists := state.Values[strings.TrimPrefix(ref, "$")]; exists {
				resolved[k] = value
				continue
			}
		}
		resolved[k] = v
	}
	return resolved
}

// ============================================================
// agent
// ============================================================

// agentExecutor resolves the node's agent configuration and invokes the
// agent provider with it. The task description falls back to the agent's
// goal when the node declares none.
type agentExecutor struct {
	agents AgentProvider
}

func (*agentExecutor) Kind() NodeKind { return KindAgent }

func (e *agentExecutor) Execute(ctx context.Context, node Node, state *RunState) (any, error) {
	if e.agents == nil {
		return nil, types.NewError(types.ErrCapabilityUnavailable, "agent provider not configured").WithNodeID(node.ID)
	}

	spec := AgentSpecFromNode(node)
	task := node.Config.Task
	if task == "" {
		task = spec.Goal
	}

	result, err := e.agents.Invoke(ctx, spec, task)
	if err != nil {
		return nil, types.NewError(types.ErrNodeExecution,
			fmt.Sprintf("agent %q failed", spec.Role)).WithNodeID(node.ID).WithCause(err)
	}

	state.Values[node.ID] = result
	return result, nil
}

// AgentSpecFromNode builds the provider-facing agent spec from an agent
// node's configuration, applying the same defaults as the crew planner.
func AgentSpecFromNode(node Node) AgentSpec {
	spec := AgentSpec{
		Name:      node.Config.Name,
		Role:      node.Config.Role,
		Goal:      node.Config.Goal,
		Backstory: node.Config.Backstory,
		Tools:     node.Config.Tools,
	}
	if spec.Role == "" {
		spec.Role = "Assistant"
	}
	return spec
}

// ============================================================
// condition
// ============================================================

// conditionExecutor evaluates the node's boolean expression against run
// state through the pluggable evaluator and records the boolean result.
type conditionExecutor struct {
	evaluator ConditionEvaluator
}

func (*conditionExecutor) Kind() NodeKind { return KindCondition }

func (e *conditionExecutor) Execute(_ context.Context, node Node, state *RunState) (any, error) {
	if e.evaluator == nil {
		return nil, types.NewError(types.ErrCapabilityUnavailable, "condition evaluator not configured").WithNodeID(node.ID)
	}

	result, err := e.evaluator.Evaluate(node.Config.Expression, state.Values)
	if err != nil {
		return nil, types.NewError(types.ErrNodeExecution, "condition evaluation failed").
			WithNodeID(node.ID).WithCause(err)
	}

	state.Values[node.ID] = result
	return result, nil
}

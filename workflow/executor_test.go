package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/canvasflow/types"
)

func TestInputExecutor_SeedsState(t *testing.T) {
	state := NewRunState(map[string]any{"query": "hello"})
	node := Node{ID: "in", Kind: KindInput, Config: NodeConfig{Data: map[string]any{"topic": "go"}}}

	exec := &inputExecutor{}
	result, err := exec.Execute(context.Background(), node, state)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"topic": "go"}, result)
	assert.Equal(t, "go", state.Values["topic"])
	assert.Equal(t, "hello", state.Values["query"], "request input survives")
}

func TestInputExecutor_NilDataNeverErrors(t *testing.T) {
	state := NewRunState(nil)
	exec := &inputExecutor{}
	result, err := exec.Execute(context.Background(), Node{ID: "in", Kind: KindInput}, state)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, result)
}

func TestOutputExecutor_SelectsKeys(t *testing.T) {
	state := NewRunState(nil)
	state.Values["summary"] = "short"
	state.Values["draft"] = "long"

	node := Node{ID: "out", Kind: KindOutput, Config: NodeConfig{Keys: []string{"summary", "missing"}}}
	exec := &outputExecutor{}
	_, err := exec.Execute(context.Background(), node, state)
	require.NoError(t, err)

	assert.Equal(t, "short", state.Output["summary"])
	assert.Nil(t, state.Output["missing"], "missing keys export as nil")
	_, hasDraft := state.Output["draft"]
	assert.False(t, hasDraft)
}

func TestOutputExecutor_NoKeysExportsAll(t *testing.T) {
	state := NewRunState(nil)
	state.Values["a"] = 1

	exec := &outputExecutor{}
	_, err := exec.Execute(context.Background(), Node{ID: "out", Kind: KindOutput}, state)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Output["a"])
}

func TestToolExecutor_ResolvesRefs(t *testing.T) {
	tools := &fakeTools{fns: map[string]func(map[string]any) (any, error){
		"echo": func(inputs map[string]any) (any, error) { return inputs["value"], nil },
	}}
	state := NewRunState(nil)
	state.Values["upstream"] = "resolved"

	node := Node{ID: "t1", Kind: KindTool, Config: NodeConfig{
		ToolName: "echo",
		Inputs:   map[string]any{"value": "$upstream"},
	}}
	exec := &toolExecutor{tools: tools}
	result, err := exec.Execute(context.Background(), node, state)
	require.NoError(t, err)
	assert.Equal(t, "resolved", result)
	assert.Equal(t, "resolved", state.Values["t1"], "result recorded under node id")
}

func TestToolExecutor_UnresolvedRefPassesThrough(t *testing.T) {
	tools := &fakeTools{fns: map[string]func(map[string]any) (any, error){
		"echo": func(inputs map[string]any) (any, error) { return inputs["value"], nil },
	}}
	node := Node{ID: "t1", Kind: KindTool, Config: NodeConfig{
		ToolName: "echo",
		Inputs:   map[string]any{"value": "$nowhere"},
	}}
	exec := &toolExecutor{tools: tools}
	result, err := exec.Execute(context.Background(), node, NewRunState(nil))
	require.NoError(t, err)
	assert.Equal(t, "$nowhere", result)
}

func TestToolExecutor_Failures(t *testing.T) {
	exec := &toolExecutor{tools: &fakeTools{fns: map[string]func(map[string]any) (any, error){
		"boom": func(map[string]any) (any, error) { return nil, errors.New("kaput") },
	}}}

	t.Run("missing tool name", func(t *testing.T) {
		_, err := exec.Execute(context.Background(), Node{ID: "t1", Kind: KindTool}, NewRunState(nil))
		require.Error(t, err)
		assert.Equal(t, types.ErrNodeExecution, types.GetErrorCode(err))
	})

	t.Run("provider error is wrapped with node id", func(t *testing.T) {
		node := Node{ID: "t2", Kind: KindTool, Config: NodeConfig{ToolName: "boom"}}
		_, err := exec.Execute(context.Background(), node, NewRunState(nil))
		require.Error(t, err)
		assert.Equal(t, types.ErrNodeExecution, types.GetErrorCode(err))
		var appErr *types.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "t2", appErr.NodeID)
	})

	t.Run("nil provider", func(t *testing.T) {
		exec := &toolExecutor{}
		node := Node{ID: "t3", Kind: KindTool, Config: NodeConfig{ToolName: "echo"}}
		_, err := exec.Execute(context.Background(), node, NewRunState(nil))
		require.Error(t, err)
		assert.Equal(t, types.ErrCapabilityUnavailable, types.GetErrorCode(err))
	})
}

func TestAgentExecutor_TaskFallsBackToGoal(t *testing.T) {
	agents := &fakeAgents{}
	node := Node{ID: "a1", Kind: KindAgent, Config: NodeConfig{Role: "writer", Goal: "write a haiku"}}

	exec := &agentExecutor{agents: agents}
	result, err := exec.Execute(context.Background(), node, NewRunState(nil))
	require.NoError(t, err)
	assert.Equal(t, "writer done: write a haiku", result)
}

func TestAgentExecutor_DefaultRole(t *testing.T) {
	spec := AgentSpecFromNode(Node{ID: "a1", Kind: KindAgent})
	assert.Equal(t, "Assistant", spec.Role)
}

func TestConditionExecutor(t *testing.T) {
	state := NewRunState(nil)

	exec := &conditionExecutor{evaluator: &fakeEvaluator{result: true}}
	result, err := exec.Execute(context.Background(), Node{ID: "c1", Kind: KindCondition, Config: NodeConfig{Expression: "x > 1"}}, state)
	require.NoError(t, err)
	assert.Equal(t, true, result)
	assert.Equal(t, true, state.Values["c1"])

	failing := &conditionExecutor{evaluator: &fakeEvaluator{err: errors.New("bad expr")}}
	_, err = failing.Execute(context.Background(), Node{ID: "c2", Kind: KindCondition}, state)
	require.Error(t, err)
	assert.Equal(t, types.ErrNodeExecution, types.GetErrorCode(err))
}

func TestExecutorSet_CoversAllKinds(t *testing.T) {
	set := newExecutorSet(&fakeTools{}, &fakeAgents{}, &fakeEvaluator{})
	for _, kind := range []NodeKind{KindAgent, KindTool, KindCondition, KindInput, KindOutput} {
		exec, err := set.resolve(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, exec.Kind())
	}

	_, err := set.resolve("gateway")
	require.Error(t, err)
}

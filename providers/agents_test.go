package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/canvasflow/workflow"
)

func TestLocalAgentProvider_Invoke(t *testing.T) {
	p := NewLocalAgentProvider(nil)

	result, err := p.Invoke(context.Background(), workflow.AgentSpec{Role: "Writer"}, "draft a summary")
	require.NoError(t, err)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Writer", m["role"])
	assert.Contains(t, m["output"], "draft a summary")
}

func TestLocalAgentProvider_InvokeRequiresTask(t *testing.T) {
	p := NewLocalAgentProvider(nil)
	_, err := p.Invoke(context.Background(), workflow.AgentSpec{Role: "Writer"}, "")
	require.Error(t, err)
}

func TestLocalAgentProvider_InvokeCrew(t *testing.T) {
	p := NewLocalAgentProvider(nil)
	agents := []workflow.AgentSpec{{Role: "Writer"}, {Role: "Editor"}}
	tasks := []workflow.CrewTask{
		{ID: "t1", Description: "write", AgentIndex: 0},
		{ID: "t2", Description: "edit", AgentIndex: 1},
	}

	result, err := p.InvokeCrew(context.Background(), agents, tasks)
	require.NoError(t, err)
	require.Len(t, result.TaskResults, 2)

	assert.Empty(t, result.TaskResults["t1"].Error)
	assert.Empty(t, result.TaskResults["t2"].Error)
	assert.NotNil(t, result.Output, "last successful output becomes the crew output")

	out, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Editor", out["role"])
}

func TestLocalAgentProvider_InvokeCrewBadIndex(t *testing.T) {
	p := NewLocalAgentProvider(nil)
	agents := []workflow.AgentSpec{{Role: "Writer"}}
	tasks := []workflow.CrewTask{
		{ID: "ok", Description: "write", AgentIndex: 0},
		{ID: "bad", Description: "edit", AgentIndex: 5},
	}

	result, err := p.InvokeCrew(context.Background(), agents, tasks)
	require.NoError(t, err, "one broken task does not fail the crew")
	assert.Empty(t, result.TaskResults["ok"].Error)
	assert.NotEmpty(t, result.TaskResults["bad"].Error)
}

func TestLocalAgentProvider_InvokeCrewNoAgents(t *testing.T) {
	p := NewLocalAgentProvider(nil)
	_, err := p.InvokeCrew(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestLocalAgentProvider_CrewHonorsCancellation(t *testing.T) {
	p := NewLocalAgentProvider(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.InvokeCrew(ctx, []workflow.AgentSpec{{Role: "Writer"}}, []workflow.CrewTask{{ID: "t1", Description: "x"}})
	require.ErrorIs(t, err, context.Canceled)
}

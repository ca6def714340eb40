package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/canvasflow/types"
)

func TestBuildCrewPlan(t *testing.T) {
	g := mustGraph(t,
		Node{ID: "in", Kind: KindInput},
		Node{ID: "writer", Kind: KindAgent, Config: NodeConfig{Role: "Writer", Goal: "draft the article", Task: "write 500 words"}},
		Node{ID: "editor", Kind: KindAgent, Config: NodeConfig{Role: "Editor", Goal: "polish the draft"}},
		Node{ID: "out", Kind: KindOutput},
	)

	plan, err := BuildCrewPlan(g)
	require.NoError(t, err)
	require.Len(t, plan.Agents, 2)
	require.Len(t, plan.Tasks, 2)

	assert.Equal(t, "Writer", plan.Agents[0].Role)
	assert.Equal(t, "write 500 words", plan.Tasks[0].Description, "explicit task wins")
	assert.Equal(t, 0, plan.Tasks[0].AgentIndex)

	assert.Equal(t, "polish the draft", plan.Tasks[1].Description, "goal is the fallback")
	assert.Equal(t, 1, plan.Tasks[1].AgentIndex)
	assert.Equal(t, "editor", plan.Tasks[1].ID, "task id is the node id")
}

func TestBuildCrewPlan_TooFewAgents(t *testing.T) {
	g := mustGraph(t,
		Node{ID: "solo", Kind: KindAgent, Config: NodeConfig{Role: "Writer"}},
	)
	_, err := BuildCrewPlan(g)
	require.Error(t, err)
	assert.Equal(t, types.ErrMalformedGraph, types.GetErrorCode(err))
}

func TestBuildCrewPlan_EmptyAgentGetsDescription(t *testing.T) {
	g := mustGraph(t,
		Node{ID: "a1", Kind: KindAgent},
		Node{ID: "a2", Kind: KindAgent},
	)
	plan, err := BuildCrewPlan(g)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Tasks[0].Description)
	assert.Equal(t, "Assistant", plan.Agents[0].Role)
}

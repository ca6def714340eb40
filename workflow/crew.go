package workflow

import (
	"fmt"

	"github.com/BaSui01/canvasflow/types"
)

// CrewPlan is the multi-agent execution plan derived from a graph: every
// agent node becomes a crew member and every member gets one task, in node
// declaration order.
type CrewPlan struct {
	Agents []AgentSpec
	Tasks  []CrewTask
}

// BuildCrewPlan extracts the crew configuration from a graph's agent nodes.
// Non-agent nodes do not participate in multi-agent execution. The graph must
// carry at least two agent nodes, matching the strategy that selects it.
func BuildCrewPlan(g *Graph) (*CrewPlan, error) {
	plan := &CrewPlan{}

	for _, node := range g.Nodes() {
		if node.Kind != KindAgent {
			continue
		}
		spec := AgentSpecFromNode(node)
		idx := len(plan.Agents)
		plan.Agents = append(plan.Agents, spec)

		description := node.Config.Task
		if description == "" {
			description = spec.Goal
		}
		if description == "" {
			description = fmt.Sprintf("Complete the objective of agent %q", spec.Role)
		}
		plan.Tasks = append(plan.Tasks, CrewTask{
			ID:          node.ID,
			Description: description,
			AgentIndex:  idx,
		})
	}

	if len(plan.Agents) < 2 {
		return nil, types.NewError(types.ErrMalformedGraph,
			fmt.Sprintf("multi-agent execution needs at least 2 agent nodes, got %d", len(plan.Agents)))
	}
	return plan, nil
}

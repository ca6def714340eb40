package workflow

// Strategy is the execution algorithm chosen for a run.
type Strategy string

const (
	// StrategyMultiAgent hands the whole node set to a crew capability that
	// coordinates several agents cooperatively on a shared task list.
	StrategyMultiAgent Strategy = "multi_agent"
	// StrategyBranching follows edges conditionally, routed by condition
	// node results rather than declaration order.
	StrategyBranching Strategy = "branching"
	// StrategySequential executes nodes once each, in declaration order,
	// ignoring edges.
	StrategySequential Strategy = "sequential"
)

// Classify selects the execution strategy for a graph. Rules are evaluated
// in order, first match wins:
//
//  1. more than one agent node  → multi_agent
//  2. at least one condition node → branching
//  3. otherwise → sequential
//
// This is an intentional node-census heuristic, not a structural graph
// analysis: edge topology is never inspected. A graph with two agents and a
// condition node is multi_agent because rule 1 fires first.
func Classify(g *Graph) Strategy {
	if g.CountKind(KindAgent) > 1 {
		return StrategyMultiAgent
	}
	if g.CountKind(KindCondition) > 0 {
		return StrategyBranching
	}
	return StrategySequential
}

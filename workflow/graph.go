package workflow

import (
	"fmt"

	"github.com/BaSui01/canvasflow/types"
)

// NodeKind defines the closed set of canvas node kinds.
type NodeKind string

const (
	// KindAgent runs an agent against a task through the agent provider.
	KindAgent NodeKind = "agent"
	// KindTool invokes a named tool through the tool provider.
	KindTool NodeKind = "tool"
	// KindCondition evaluates a boolean expression against run state.
	KindCondition NodeKind = "condition"
	// KindInput seeds run state with the node's static payload.
	KindInput NodeKind = "input"
	// KindOutput copies named state values into the run's final output.
	KindOutput NodeKind = "output"
)

// Valid reports whether k is one of the five known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindAgent, KindTool, KindCondition, KindInput, KindOutput:
		return true
	default:
		return false
	}
}

// NodeConfig contains node-kind-specific configuration.
type NodeConfig struct {
	// Agent node config
	Name      string   `json:"name,omitempty"`
	Role      string   `json:"role,omitempty"`
	Goal      string   `json:"goal,omitempty"`
	Backstory string   `json:"backstory,omitempty"`
	Tools     []string `json:"tools,omitempty"`
	Task      string   `json:"task,omitempty"`

	// Tool node config
	ToolName string         `json:"tool_name,omitempty"`
	Inputs   map[string]any `json:"inputs,omitempty"`

	// Condition node config
	Expression string `json:"expression,omitempty"`

	// Input node config
	Data map[string]any `json:"data,omitempty"`

	// Output node config
	Keys []string `json:"keys,omitempty"`
}

// Node represents a vertex in a canvas graph.
type Node struct {
	ID     string     `json:"id"`
	Kind   NodeKind   `json:"kind"`
	Label  string     `json:"label,omitempty"`
	Entry  bool       `json:"entry,omitempty"`
	Config NodeConfig `json:"config"`
}

// Edge represents a directed connection between two nodes. Label carries the
// branch selector for edges leaving a condition node ("true" / "false").
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// Canvas is the externally supplied canvas representation: an ordered node
// list and an ordered edge list. No other canvas fields are interpreted by
// the engine.
type Canvas struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Graph is a compiled canvas: exactly the supplied nodes and edges, with
// declaration order preserved and an index for id lookup.
type Graph struct {
	nodes []Node
	index map[string]int
	out   map[string][]Edge
	edges []Edge
}

// BuildGraph compiles a canvas into a Graph. It fails with a
// MALFORMED_GRAPH error if the canvas has no nodes, a duplicate node id, an
// unrecognized node kind, or an edge referencing an unknown node id.
func BuildGraph(canvas *Canvas) (*Graph, error) {
	if canvas == nil || len(canvas.Nodes) == 0 {
		return nil, types.NewError(types.ErrMalformedGraph, "canvas must have at least one node")
	}

	g := &Graph{
		nodes: make([]Node, len(canvas.Nodes)),
		index: make(map[string]int, len(canvas.Nodes)),
		out:   make(map[string][]Edge),
		edges: make([]Edge, len(canvas.Edges)),
	}
	copy(g.nodes, canvas.Nodes)
	copy(g.edges, canvas.Edges)

	for i, node := range g.nodes {
		if node.ID == "" {
			return nil, types.NewError(types.ErrMalformedGraph, fmt.Sprintf("node at position %d has empty id", i))
		}
		if !node.Kind.Valid() {
			return nil, types.NewError(types.ErrMalformedGraph,
				fmt.Sprintf("node %s has unrecognized kind %q", node.ID, node.Kind)).WithNodeID(node.ID)
		}
		if _, exists := g.index[node.ID]; exists {
			return nil, types.NewError(types.ErrMalformedGraph,
				fmt.Sprintf("duplicate node id %q", node.ID)).WithNodeID(node.ID)
		}
		g.index[node.ID] = i
	}

	for _, edge := range g.edges {
		if _, ok := g.index[edge.Source]; !ok {
			return nil, types.NewError(types.ErrMalformedGraph,
				fmt.Sprintf("edge references unknown source node %q", edge.Source))
		}
		if _, ok := g.index[edge.Target]; !ok {
			return nil, types.NewError(types.ErrMalformedGraph,
				fmt.Sprintf("edge references unknown target node %q", edge.Target))
		}
		g.out[edge.Source] = append(g.out[edge.Source], edge)
	}

	return g, nil
}

// Nodes returns all nodes in declaration order.
func (g *Graph) Nodes() []Node {
	return g.nodes
}

// Edges returns all edges in declaration order.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// Node retrieves a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// OutEdges returns the outgoing edges of a node in declaration order.
func (g *Graph) OutEdges(id string) []Edge {
	return g.out[id]
}

// Entry returns the id of the entry node: the first node flagged as entry,
// falling back to the first declared node.
func (g *Graph) Entry() string {
	for _, node := range g.nodes {
		if node.Entry {
			return node.ID
		}
	}
	return g.nodes[0].ID
}

// CountKind returns the number of nodes of the given kind.
func (g *Graph) CountKind(kind NodeKind) int {
	n := 0
	for _, node := range g.nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

// HasCycle reports whether the edge set contains a directed cycle.
func (g *Graph) HasCycle() bool {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case visiting:
			return true
		case done:
			return false
		}
		state[id] = visiting
		for _, edge := range g.out[id] {
			if visit(edge.Target) {
				return true
			}
		}
		state[id] = done
		return false
	}

	for _, node := range g.nodes {
		if visit(node.ID) {
			return true
		}
	}
	return false
}

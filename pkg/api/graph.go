package api

// Graph is the static description of a workflow: typed node instances
// wired together by port-addressed edges. It carries no behavior; the
// engine resolves each node's Type through a registry at dispatch time.
type Graph struct {
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name"`
	Nodes []NodeInstance `json:"nodes"`
	Edges []Edge         `json:"edges"`
}

// NodeInstance is a single processing step placed in a graph.
// Parameters are fixed configuration for this instance, validated
// against the node type's schema; they are never computed from
// upstream data.
type NodeInstance struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Edge connects one node's output port to another node's input port.
//
// Several edges may leave the same source port (fan-out) and several
// may enter the same target port (fan-in). The target of a fan-in
// runs only after every edge into the port has delivered, and the
// port keeps the value of whichever producing node completed last; it
// is not an aggregation point.
type Edge struct {
	SourceNode string `json:"sourceNode"`
	SourcePort string `json:"sourcePort"`
	TargetNode string `json:"targetNode"`
	TargetPort string `json:"targetPort"`
}

// PortMain is the conventional port name for nodes with a single
// input or output.
const PortMain = "main"

// Node returns the node instance with the given id, if present.
func (g *Graph) Node(id string) (NodeInstance, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeInstance{}, false
}

// EdgesInto returns the edges whose target is the given node.
func (g *Graph) EdgesInto(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.TargetNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EdgesFrom returns the edges whose source is the given node.
func (g *Graph) EdgesFrom(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.SourceNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

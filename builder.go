package flume

import (
	"fmt"

	"github.com/arkadian-io/flume/pkg/api"
)

// GraphBuilder provides a fluent API for assembling workflow graphs:
//
//	graph := flume.NewGraph("EnrichLeads").
//	    Node("fetch", "http.request", flume.Values{"url": leadsURL}).
//	    Node("clean", "data.transform", flume.Values{"script": script}).
//	    Node("filter", "data.filter", flume.Values{"conditions": conds}).
//	    Connect("fetch", "response", "clean", "main").
//	    Connect("clean", "main", "filter", "main").
//	    Build()
//
//	x, err := eng.Execute(ctx, graph, input)
type GraphBuilder struct {
	graph api.Graph
}

// NewGraph creates a new graph builder with the given workflow name.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{
		graph: api.Graph{
			Name:  name,
			Nodes: make([]api.NodeInstance, 0),
		},
	}
}

// Name returns the workflow name.
func (b *GraphBuilder) Name() string {
	return b.graph.Name
}

// Node appends a node instance. The id must be unique within the
// graph; nodeType must be registered with the engine before execution.
func (b *GraphBuilder) Node(id, nodeType string, parameters Values) *GraphBuilder {
	if id == "" {
		panic("flume: node id must not be empty")
	}
	if nodeType == "" {
		panic(fmt.Sprintf("flume: node %q has empty type", id))
	}

	b.graph.Nodes = append(b.graph.Nodes, api.NodeInstance{
		ID:         id,
		Type:       nodeType,
		Parameters: parameters,
	})
	return b
}

// NamedNode is Node with a human-readable display name.
func (b *GraphBuilder) NamedNode(id, nodeType, name string, parameters Values) *GraphBuilder {
	b.Node(id, nodeType, parameters)
	b.graph.Nodes[len(b.graph.Nodes)-1].Name = name
	return b
}

// Connect wires sourceNode's output port to targetNode's input port.
func (b *GraphBuilder) Connect(sourceNode, sourcePort, targetNode, targetPort string) *GraphBuilder {
	if sourceNode == "" || targetNode == "" {
		panic("flume: edge endpoints must not be empty")
	}
	if sourcePort == "" {
		sourcePort = api.PortMain
	}
	if targetPort == "" {
		targetPort = api.PortMain
	}

	b.graph.Edges = append(b.graph.Edges, api.Edge{
		SourceNode: sourceNode,
		SourcePort: sourcePort,
		TargetNode: targetNode,
		TargetPort: targetPort,
	})
	return b
}

// Then is a convenience for chaining two nodes main-to-main.
func (b *GraphBuilder) Then(sourceNode, targetNode string) *GraphBuilder {
	return b.Connect(sourceNode, api.PortMain, targetNode, api.PortMain)
}

// Build returns the assembled graph. The builder may keep being used;
// further calls do not affect graphs already built.
func (b *GraphBuilder) Build() *api.Graph {
	g := api.Graph{
		ID:    b.graph.ID,
		Name:  b.graph.Name,
		Nodes: append([]api.NodeInstance(nil), b.graph.Nodes...),
		Edges: append([]api.Edge(nil), b.graph.Edges...),
	}
	return &g
}

package engine

import (
	"fmt"
	"sort"

	"github.com/arkadian-io/flume/pkg/api"
)

// validate rejects malformed graphs before any node runs: duplicate or
// missing node ids, unregistered types, cycles, and required input
// ports nothing can ever feed.
func (e *Engine) validate(graph *api.Graph) error {
	if graph == nil || len(graph.Nodes) == 0 {
		return &api.ValidationError{Reason: "unknown-node", Detail: "workflow must contain at least one node"}
	}

	seen := make(map[string]struct{}, len(graph.Nodes))
	for _, n := range graph.Nodes {
		if n.ID == "" {
			return &api.ValidationError{Reason: "unknown-node", Detail: "node without id"}
		}
		if _, dup := seen[n.ID]; dup {
			return &api.ValidationError{Reason: "duplicate-node", NodeID: n.ID}
		}
		seen[n.ID] = struct{}{}

		if !e.registry.Has(n.Type) {
			return &api.ValidationError{
				Reason: "unknown-type",
				NodeID: n.ID,
				Detail: fmt.Sprintf("node type %q is not registered", n.Type),
			}
		}
	}

	for _, edge := range graph.Edges {
		if _, ok := seen[edge.SourceNode]; !ok {
			return &api.ValidationError{
				Reason: "unknown-node",
				NodeID: edge.SourceNode,
				Detail: "edge references unknown source node",
			}
		}
		if _, ok := seen[edge.TargetNode]; !ok {
			return &api.ValidationError{
				Reason: "unknown-node",
				NodeID: edge.TargetNode,
				Detail: "edge references unknown target node",
			}
		}
	}

	if cycle := findCycle(graph); len(cycle) > 0 {
		return &api.ValidationError{Reason: "cycle", Cycle: cycle}
	}

	return e.checkRequiredInputs(graph)
}

// findCycle runs Kahn's algorithm; nodes left with a positive in-degree
// afterwards form the offending cycle (or feed into one).
func findCycle(graph *api.Graph) []string {
	indegree := make(map[string]int, len(graph.Nodes))
	adjacency := make(map[string][]string)
	for _, n := range graph.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range graph.Edges {
		adjacency[e.SourceNode] = append(adjacency[e.SourceNode], e.TargetNode)
		indegree[e.TargetNode]++
	}

	var queue []string
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adjacency[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited == len(graph.Nodes) {
		return nil
	}
	var cycle []string
	for id, d := range indegree {
		if d > 0 {
			cycle = append(cycle, id)
		}
	}
	sort.Strings(cycle)
	return cycle
}

// checkRequiredInputs verifies every required input port is fed by an
// edge, or belongs to an entry node where the initial input binds it.
func (e *Engine) checkRequiredInputs(graph *api.Graph) error {
	fedPorts := make(map[string]map[string]struct{})
	incoming := make(map[string]int)
	for _, edge := range graph.Edges {
		incoming[edge.TargetNode]++
		ports, ok := fedPorts[edge.TargetNode]
		if !ok {
			ports = make(map[string]struct{})
			fedPorts[edge.TargetNode] = ports
		}
		ports[edge.TargetPort] = struct{}{}
	}

	for _, n := range graph.Nodes {
		if incoming[n.ID] == 0 {
			// Entry node: the run input binds its required ports.
			continue
		}
		schema, ok := e.registry.Schema(n.Type)
		if !ok {
			continue
		}
		for _, port := range schema.Inputs {
			if !port.Required {
				continue
			}
			if _, fed := fedPorts[n.ID][port.Name]; !fed {
				return &api.ValidationError{
					Reason: "unsatisfied-input",
					NodeID: n.ID,
					Detail: fmt.Sprintf("required input port %q has no incoming edge", port.Name),
				}
			}
		}
	}
	return nil
}

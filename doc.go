// Package flume provides an embeddable DAG workflow engine for Go.
//
// Flume executes workflows described as graphs: typed node instances
// wired together by port-addressed edges. It is built for backend
// services that automate multi-step data flows (fetch, transform,
// filter, call out) without external orchestration infrastructure.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Graph
//  2. Executor
//  3. Registry
//  4. Engine
//  5. Execution
//
// # Graph
//
// A Graph is pure data: nodes carry a type and fixed parameters, edges
// name the output port they read and the input port they feed. Graphs
// can be assembled in code with GraphBuilder or decoded from JSON.
//
// # Executor
//
// An Executor is the executable unit behind a node type:
//
//	type Executor interface {
//	    Execute(ctx context.Context, inputs, params Values, run *Execution) (Values, error)
//	}
//
// Executors receive their bound input ports and return their populated
// output ports. Leaving an output port out of the result prunes the
// downstream branch, which is how data.filter steers execution.
//
// # Registry
//
// The registry maps type identifiers to executors and their schemas.
// The built-in set (data.transform, data.filter, http.request,
// integration.call and friends) registers through nodes.RegisterBuiltins;
// applications add their own types next to it.
//
// # Engine
//
// The engine validates a graph (cycles, unknown types, unsatisfied
// required inputs), then repeatedly dispatches every node whose inputs
// are satisfied. Independent nodes run concurrently; a node failure
// fails the run and stops further dispatch. Runs can be executed
// synchronously, started in the background, listed, and cancelled.
//
// # Execution
//
// An Execution tracks one run: status, per-node records, variables
// shared across nodes, and the final result derived from terminal
// nodes. Snapshot renders a wire-friendly view of it at any point of
// the run.
//
// Example:
//
//	eng, _, err := flume.NewEngine(flume.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	graph := flume.NewGraph("Hello").
//	    Node("shout", "data.transform", flume.Values{"script": "upper greeting"}).
//	    Build()
//
//	x, err := eng.Execute(ctx, graph, map[string]any{"greeting": "hi"})
//
// For the HTTP server around the engine, see cmd/flumed.
package flume

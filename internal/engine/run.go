package engine

import (
	"context"
	"errors"
	"time"

	"github.com/arkadian-io/flume/pkg/api"
)

// completion carries one finished node back to the bookkeeping loop.
type completion struct {
	nodeID    string
	nodeType  string
	outputs   api.Values
	err       error
	startedAt time.Time
	duration  time.Duration
}

// runState is the scheduler's mutable view of one execution. It is
// touched only by the bookkeeping goroutine, which serializes "record
// outcome + compute newly ready" as required for consistency under
// concurrent node completions.
type runState struct {
	graph *api.Graph

	// inputs accumulates routed port values per node. A port fed by
	// several edges keeps the value of the last completion to arrive.
	inputs map[string]api.Values

	// waiting tracks, per node and required input port, how many
	// incoming edges have not fired yet. A port counts as satisfied
	// only when every edge feeding it has delivered, so a fan-in node
	// runs after all of its predecessors.
	waiting map[string]map[string]int

	scheduled map[string]struct{}
	inflight  int
}

// run drives the execution to a terminal status. It is the only writer
// of the execution context; node goroutines report through the
// completions channel.
func (e *Engine) run(ctx context.Context, x *api.Execution, limit int) {
	graph := x.Graph()

	if err := x.Begin(); err != nil {
		e.finalize(x)
		return
	}
	e.observer.OnExecutionStart(ctx, x)

	nodeCtx, cancelNodes := context.WithCancel(ctx)
	defer cancelNodes()

	var sem chan struct{}
	if limit > 0 {
		sem = make(chan struct{}, limit)
	}

	// Buffered to the node count so a worker can always deliver its
	// completion without blocking, even after the run is finalized.
	completions := make(chan completion, len(graph.Nodes))

	st := &runState{
		graph:     graph,
		inputs:    make(map[string]api.Values),
		waiting:   make(map[string]map[string]int),
		scheduled: make(map[string]struct{}),
	}
	e.seed(st, x)

	for id := range st.waiting {
		if len(st.waiting[id]) == 0 {
			e.dispatch(nodeCtx, st, x, id, sem, completions)
		}
	}

	for st.inflight > 0 {
		select {
		case <-ctx.Done():
			if x.MarkCancelled() == nil {
				e.observer.OnExecutionCancelled(context.WithoutCancel(ctx), x)
			}
			cancelNodes()
			e.drain(st, completions)
			e.finalize(x)
			return

		case c := <-completions:
			st.inflight--

			if c.err != nil {
				x.RecordNode(api.NodeRecord{
					NodeID:    c.nodeID,
					NodeType:  c.nodeType,
					Status:    api.NodeStatusFailed,
					Err:       c.err,
					StartedAt: c.startedAt,
					Duration:  c.duration,
				})
				if x.Fail(c.err) == nil {
					e.observer.OnExecutionFailed(ctx, x, c.err)
				}
				cancelNodes()
				e.drain(st, completions)
				e.finalize(x)
				return
			}

			x.RecordNode(api.NodeRecord{
				NodeID:    c.nodeID,
				NodeType:  c.nodeType,
				Status:    api.NodeStatusSuccess,
				Output:    c.outputs,
				StartedAt: c.startedAt,
				Duration:  c.duration,
			})

			for _, ready := range e.route(st, c) {
				e.dispatch(nodeCtx, st, x, ready, sem, completions)
			}
		}
	}

	if x.Complete(deriveResult(x)) == nil {
		e.observer.OnExecutionCompleted(ctx, x)
	}
	e.finalize(x)
}

// seed computes each node's outstanding required ports and binds the
// run input to entry nodes. Entry nodes and nodes with only optional
// inputs start with an empty waiting set and form the initial ready
// set.
func (e *Engine) seed(st *runState, x *api.Execution) {
	incoming := make(map[string]map[string]int)
	for _, edge := range st.graph.Edges {
		ports, ok := incoming[edge.TargetNode]
		if !ok {
			ports = make(map[string]int)
			incoming[edge.TargetNode] = ports
		}
		ports[edge.TargetPort]++
	}

	for _, n := range st.graph.Nodes {
		waiting := make(map[string]int)

		if fed, hasEdges := incoming[n.ID]; hasEdges {
			schema, _ := e.registry.Schema(n.Type)
			for _, port := range schema.Inputs {
				if !port.Required {
					continue
				}
				if edges := fed[port.Name]; edges > 0 {
					waiting[port.Name] = edges
				}
			}
		} else {
			// Entry node: the initial input binds required ports and a
			// declared main port, or the main port for schema-less
			// types. Optional side ports (an HTTP node's body, say)
			// stay unbound so the run input never leaks into them.
			values := api.Values{}
			schema, ok := e.registry.Schema(n.Type)
			if ok && len(schema.Inputs) > 0 {
				for _, port := range schema.Inputs {
					if port.Required || port.Name == api.PortMain {
						values[port.Name] = x.Input()
					}
				}
			} else {
				values[api.PortMain] = x.Input()
			}
			st.inputs[n.ID] = values
		}

		st.waiting[n.ID] = waiting
	}
}

// dispatch starts one node goroutine. Resolution goes through the
// registry so type bindings stay overridable process-wide.
func (e *Engine) dispatch(ctx context.Context, st *runState, x *api.Execution, nodeID string, sem chan struct{}, completions chan<- completion) {
	if _, done := st.scheduled[nodeID]; done {
		return
	}
	st.scheduled[nodeID] = struct{}{}
	st.inflight++

	node, _ := st.graph.Node(nodeID)
	executor, ok := e.registry.Executor(node.Type)

	// The executor gets its own copy: routing keeps writing into
	// st.inputs for late optional-port deliveries, and those writes
	// must never touch a map a running node can read.
	inputs := api.Values{}
	for k, v := range st.inputs[nodeID] {
		inputs[k] = v
	}
	params := api.Values{}
	for k, v := range node.Parameters {
		params[k] = v
	}

	go func() {
		if sem != nil {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				completions <- completion{nodeID: nodeID, nodeType: node.Type, err: ctx.Err(), startedAt: time.Now()}
				return
			}
		}

		e.observer.OnNodeStart(ctx, x, nodeID, node.Type)
		started := time.Now()

		var outputs api.Values
		var err error
		if !ok {
			// Unregistered between validation and dispatch.
			err = &api.ValidationError{Reason: "unknown-type", NodeID: nodeID}
		} else {
			outputs, err = executor.Execute(ctx, inputs, params, x)
		}
		duration := time.Since(started)
		err = tagNodeError(nodeID, err)

		e.observer.OnNodeCompleted(ctx, x, nodeID, node.Type, err, duration)

		completions <- completion{
			nodeID:    nodeID,
			nodeType:  node.Type,
			outputs:   outputs,
			err:       err,
			startedAt: started,
			duration:  duration,
		}
	}()
}

// route delivers one node's populated output ports along their edges
// and returns the targets that became ready. A required port is
// satisfied once every edge feeding it has fired, with the last
// arrival's value winning. Ports the node left unpopulated never
// satisfy edges; that is the branching mechanism, and a node whose
// predecessors all routed elsewhere simply never becomes ready.
func (e *Engine) route(st *runState, c completion) []string {
	var ready []string
	for _, edge := range st.graph.Edges {
		if edge.SourceNode != c.nodeID {
			continue
		}
		value, populated := c.outputs[edge.SourcePort]
		if !populated {
			continue
		}

		values, ok := st.inputs[edge.TargetNode]
		if !ok {
			values = api.Values{}
			st.inputs[edge.TargetNode] = values
		}
		values[edge.TargetPort] = value

		if waiting, ok := st.waiting[edge.TargetNode]; ok {
			if remaining, gated := waiting[edge.TargetPort]; gated {
				if remaining--; remaining > 0 {
					waiting[edge.TargetPort] = remaining
					continue
				}
				delete(waiting, edge.TargetPort)
			}
			if len(waiting) == 0 {
				if _, done := st.scheduled[edge.TargetNode]; !done {
					ready = append(ready, edge.TargetNode)
				}
			}
		}
	}
	return ready
}

// drain consumes outstanding completions after the run turned
// terminal. Outcomes are discarded: RecordNode drops appends once a
// terminal status is set.
func (e *Engine) drain(st *runState, completions <-chan completion) {
	for st.inflight > 0 {
		<-completions
		st.inflight--
	}
}

// tagNodeError normalizes executor failures: timeout and validation
// errors keep their type, everything else becomes an ExecutionError
// attributed to the node.
func tagNodeError(nodeID string, err error) error {
	if err == nil {
		return nil
	}
	var timeout *api.TimeoutError
	if errors.As(err, &timeout) {
		if timeout.NodeID == "" {
			timeout.NodeID = nodeID
		}
		return err
	}
	var execErr *api.ExecutionError
	if errors.As(err, &execErr) {
		if execErr.NodeID == "" {
			execErr.NodeID = nodeID
		}
		return err
	}
	return &api.ExecutionError{NodeID: nodeID, Err: err}
}

// deriveResult assembles the run result from terminal nodes (nodes
// with no outgoing edges). One executed terminal node contributes its
// outputs directly; several are keyed by node id.
func deriveResult(x *api.Execution) any {
	graph := x.Graph()
	hasOutgoing := make(map[string]struct{})
	for _, edge := range graph.Edges {
		hasOutgoing[edge.SourceNode] = struct{}{}
	}

	results := map[string]any{}
	var last api.Values
	for _, n := range graph.Nodes {
		if _, ok := hasOutgoing[n.ID]; ok {
			continue
		}
		rec, ok := x.NodeRecord(n.ID)
		if !ok || rec.Status != api.NodeStatusSuccess {
			continue
		}
		results[n.ID] = rec.Output
		last = rec.Output
	}

	if len(results) == 1 {
		return last
	}
	return results
}

package api

import (
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a sink state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// NodeStatus is the recorded outcome class of a single node run.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusFailed  NodeStatus = "failed"
)

// NodeRecord is the recorded outcome of one node execution.
type NodeRecord struct {
	NodeID    string
	NodeType  string
	Status    NodeStatus
	Output    Values
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Execution is the mutable per-run record: status, variables, per-node
// outcomes and timing. The engine owns it for the run's lifetime; node
// executors observe and append to it through the methods here but never
// replace it. Once a terminal status is set, all further mutation is
// rejected.
//
// All methods are safe for concurrent use; the engine serializes its
// own bookkeeping, and reads from in-flight nodes take the same lock.
type Execution struct {
	mu sync.RWMutex

	id    string
	graph *Graph
	input any

	status    Status
	startTime time.Time
	endTime   time.Time

	variables *VarStore
	executed  map[string]struct{}
	records   map[string]NodeRecord

	result any
	err    error
}

// NewExecution creates a pending execution for the given graph.
func NewExecution(id string, graph *Graph, input any) *Execution {
	return &Execution{
		id:        id,
		graph:     graph,
		input:     input,
		status:    StatusPending,
		variables: NewVarStore(),
		executed:  make(map[string]struct{}),
		records:   make(map[string]NodeRecord),
	}
}

// ID returns the execution's opaque unique identifier.
func (x *Execution) ID() string { return x.id }

// Graph returns the workflow this execution runs.
func (x *Execution) Graph() *Graph { return x.graph }

// Input returns the payload the run was started with.
func (x *Execution) Input() any { return x.input }

// Variables returns the run-scoped variable store.
func (x *Execution) Variables() *VarStore { return x.variables }

// Status returns the current lifecycle state.
func (x *Execution) Status() Status {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.status
}

// StartTime returns when the run entered StatusRunning.
func (x *Execution) StartTime() time.Time {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.startTime
}

// EndTime returns when the run reached a terminal status, or the zero
// time while it is still live.
func (x *Execution) EndTime() time.Time {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.endTime
}

// Duration returns elapsed run time: end-start once terminal, running
// time otherwise, zero before the run starts.
func (x *Execution) Duration() time.Duration {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.startTime.IsZero() {
		return 0
	}
	if x.endTime.IsZero() {
		return time.Since(x.startTime)
	}
	return x.endTime.Sub(x.startTime)
}

// Result returns the run-level result, set once at completion.
func (x *Execution) Result() any {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.result
}

// Err returns the run-level error, set once at failure or cancellation.
func (x *Execution) Err() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.err
}

// NodeRecord returns the recorded outcome for a node that has
// completed, successfully or not.
func (x *Execution) NodeRecord(nodeID string) (NodeRecord, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.records[nodeID]
	return rec, ok
}

// ExecutedNodes returns the ids of all nodes that have completed.
func (x *Execution) ExecutedNodes() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.executed))
	for id := range x.executed {
		out = append(out, id)
	}
	return out
}

// Executed reports whether the given node has completed.
func (x *Execution) Executed(nodeID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.executed[nodeID]
	return ok
}

// Progress reports executed and total node counts plus a percentage.
func (x *Execution) Progress() (executed, total int, percentage float64) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	executed = len(x.executed)
	total = len(x.graph.Nodes)
	if total > 0 {
		percentage = float64(executed) / float64(total) * 100
	}
	return executed, total, percentage
}

// Begin transitions pending -> running and stamps the start time.
func (x *Execution) Begin() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.status != StatusPending {
		return fmt.Errorf("cannot start execution %s in status %s", x.id, x.status)
	}
	x.status = StatusRunning
	x.startTime = time.Now()
	return nil
}

// RecordNode stores the outcome of a completed node and marks it
// executed. Recording against a terminal execution is a no-op, so a
// node that finishes after cancellation leaves no trace.
func (x *Execution) RecordNode(rec NodeRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.status.Terminal() {
		return
	}
	x.records[rec.NodeID] = rec
	x.executed[rec.NodeID] = struct{}{}
}

// Complete transitions running -> completed and sets the result.
func (x *Execution) Complete(result any) error {
	return x.finish(StatusCompleted, result, nil)
}

// Fail transitions running -> failed and sets the run error.
func (x *Execution) Fail(err error) error {
	return x.finish(StatusFailed, nil, err)
}

// MarkCancelled transitions a live execution to cancelled.
func (x *Execution) MarkCancelled() error {
	return x.finish(StatusCancelled, nil, ErrCancelled)
}

func (x *Execution) finish(status Status, result any, err error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.status.Terminal() {
		return fmt.Errorf("execution %s already %s", x.id, x.status)
	}
	x.status = status
	x.result = result
	x.err = err
	x.endTime = time.Now()
	return nil
}

// Progress is the serialized run-progress block.
type Progress struct {
	Total      int     `json:"total"`
	Executed   int     `json:"executed"`
	Percentage float64 `json:"percentage"`
}

// WorkflowInfo is the serialized workflow reference block.
type WorkflowInfo struct {
	Name      string `json:"name"`
	NodeCount int    `json:"nodeCount"`
}

// Snapshot is the externally visible view of an execution, shaped for
// status and reporting APIs.
type Snapshot struct {
	ExecutionID string       `json:"executionId"`
	Workflow    WorkflowInfo `json:"workflow"`
	Status      Status       `json:"status"`
	StartTime   *time.Time   `json:"startTime,omitempty"`
	EndTime     *time.Time   `json:"endTime,omitempty"`
	DurationMS  int64        `json:"duration"`
	Progress    Progress     `json:"progress"`
	Result      any          `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Snapshot captures the current state for serialization.
func (x *Execution) Snapshot() Snapshot {
	x.mu.RLock()
	defer x.mu.RUnlock()

	snap := Snapshot{
		ExecutionID: x.id,
		Workflow: WorkflowInfo{
			Name:      x.graph.Name,
			NodeCount: len(x.graph.Nodes),
		},
		Status: x.status,
		Progress: Progress{
			Total:    len(x.graph.Nodes),
			Executed: len(x.executed),
		},
		Result: x.result,
	}
	if snap.Progress.Total > 0 {
		snap.Progress.Percentage = float64(snap.Progress.Executed) / float64(snap.Progress.Total) * 100
	}
	if !x.startTime.IsZero() {
		t := x.startTime
		snap.StartTime = &t
		end := time.Now()
		if !x.endTime.IsZero() {
			e := x.endTime
			snap.EndTime = &e
			end = x.endTime
		}
		snap.DurationMS = end.Sub(x.startTime).Milliseconds()
	}
	if x.err != nil {
		snap.Error = x.err.Error()
	}
	return snap
}

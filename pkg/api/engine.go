package api

import "context"

// ExecutionFilter selects executions from the engine's history.
// Zero values mean "no filter" for that field.
type ExecutionFilter struct {
	WorkflowName string
	Status       Status
}

// RunOption configures a single run.
type RunOption func(*RunConfig)

// RunConfig holds per-run settings assembled from RunOptions.
type RunConfig struct {
	// ExecutionID overrides the generated id. Used by callers that
	// allocate ids up front (for example an HTTP layer returning the
	// id before the run finishes).
	ExecutionID string

	// ConcurrencyLimit bounds how many nodes may be in flight at once.
	// Zero means unbounded.
	ConcurrencyLimit int
}

// WithExecutionID fixes the execution id for a run.
func WithExecutionID(id string) RunOption {
	return func(c *RunConfig) { c.ExecutionID = id }
}

// WithConcurrencyLimit caps the number of concurrently executing nodes.
func WithConcurrencyLimit(n int) RunOption {
	return func(c *RunConfig) { c.ConcurrencyLimit = n }
}

// Engine validates workflow graphs and drives their execution.
type Engine interface {
	// Execute validates the graph, runs it to a terminal status and
	// returns the finalized execution. Validation failures return a
	// *ValidationError and no Execution. A failed run returns the
	// execution together with its run-level error.
	Execute(ctx context.Context, graph *Graph, input any, opts ...RunOption) (*Execution, error)

	// StartExecution begins a run asynchronously and returns the live
	// execution immediately after validation. Progress is observable
	// through the returned Execution and the engine's observer.
	StartExecution(ctx context.Context, graph *Graph, input any, opts ...RunOption) (*Execution, error)

	// GetExecution looks up a live or recently finished execution.
	// Returns ErrExecutionNotFound if the id is unknown.
	GetExecution(id string) (*Execution, error)

	// ListExecutions returns snapshots of known executions matching
	// the filter, most recent first.
	ListExecutions(filter ExecutionFilter) []Snapshot

	// Cancel requests cancellation of a live execution. Dispatch stops
	// and in-flight node contexts are cancelled; nodes that ignore the
	// signal run to completion and their outcome is discarded.
	Cancel(id string) error
}

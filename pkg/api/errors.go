package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidExecutor is returned when registering a nil executor.
	ErrInvalidExecutor = errors.New("invalid executor")

	// ErrExecutionNotFound is returned when an execution id is unknown.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrCancelled is the run-level error recorded when an execution
	// is cancelled before completion.
	ErrCancelled = errors.New("execution cancelled")
)

// ValidationError reports a malformed graph. It is returned before any
// node runs; the execution context never reaches StatusRunning.
type ValidationError struct {
	// Reason is a short machine-friendly tag: "cycle", "unknown-type",
	// "duplicate-node", "unknown-node", "unsatisfied-input".
	Reason string

	// NodeID names the offending node where one exists.
	NodeID string

	// Cycle lists the node ids involved when Reason is "cycle".
	Cycle []string

	Detail string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("workflow validation failed")
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.NodeID != "" {
		fmt.Fprintf(&b, ": node %s", e.NodeID)
	}
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, ": cycle through %s", strings.Join(e.Cycle, " -> "))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// ExecutionError reports that a node's own logic failed. The engine
// catches it at the dispatch boundary and fails the run.
type ExecutionError struct {
	NodeID string
	Op     string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
	}
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TimeoutError reports that a node exceeded its execution budget.
type TimeoutError struct {
	NodeID string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node %s: execution exceeded %s", e.NodeID, e.Budget)
}

/// TransportError reports a network-level failure in an outbound call:
// DNS, connection refused, client timeout. It is distinct from an
// HTTP-level non-2xx response, which is data, not an error.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

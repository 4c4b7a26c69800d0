package flume

import (
	"context"

	"github.com/arkadian-io/flume/internal/engine"
	"github.com/arkadian-io/flume/internal/persistence"
	"github.com/arkadian-io/flume/pkg/api"
	"github.com/arkadian-io/flume/pkg/nodes"
	"github.com/arkadian-io/flume/pkg/registry"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine          = api.Engine
	Graph           = api.Graph
	NodeInstance    = api.NodeInstance
	Edge            = api.Edge
	Values          = api.Values
	Executor        = api.Executor
	ExecutorFunc    = api.ExecutorFunc
	Schema          = api.Schema
	PortSpec        = api.PortSpec
	ParamSpec       = api.ParamSpec
	Execution       = api.Execution
	Snapshot        = api.Snapshot
	Status          = api.Status
	ExecutionFilter = api.ExecutionFilter
	RunOption       = api.RunOption
	Observer        = api.Observer
	NoopObserver    = api.NoopObserver
	ValidationError = api.ValidationError
	ExecutionError  = api.ExecutionError
	TimeoutError    = api.TimeoutError
	TransportError  = api.TransportError
	Registry        = registry.Registry
)

// Re-export common helpers.

var (
	NewRegistry          = registry.New
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	WithExecutionID      = api.WithExecutionID
	WithConcurrencyLimit = api.WithConcurrencyLimit
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled

	PortMain = api.PortMain
)

// Engine constructors
// These wrap the internal packages so external callers never need to
// import them.

// Options configures an embedded engine.
type Options struct {
	// Observer receives lifecycle events. Nil means no observation.
	Observer Observer

	// Store receives finished execution records. Nil keeps history in
	// memory only.
	Store persistence.ExecutionStore

	// Concurrency bounds in-flight nodes per run. Zero means unbounded.
	Concurrency int

	// Nodes configures the built-in node set. The zero value works.
	Nodes nodes.Config
}

// NewEngine returns an Engine with the built-in node set registered.
// The returned registry accepts additional custom node types.
func NewEngine(opts Options) (Engine, *registry.Registry, error) {
	reg := registry.New()
	if err := nodes.RegisterBuiltins(reg, opts.Nodes); err != nil {
		return nil, nil, err
	}
	eng := engine.New(engine.Config{
		Registry:           reg,
		Observer:           opts.Observer,
		Store:              opts.Store,
		DefaultConcurrency: opts.Concurrency,
	})
	return eng, reg, nil
}

// NewBareEngine returns an Engine over the given registry with no
// built-in nodes. Useful for tests and fully custom node sets.
func NewBareEngine(reg *registry.Registry, opts Options) Engine {
	return engine.New(engine.Config{
		Registry:           reg,
		Observer:           opts.Observer,
		Store:              opts.Store,
		DefaultConcurrency: opts.Concurrency,
	})
}

// Convenience helpers that just forward to the underlying Engine.

// Execute runs graph synchronously and returns the finished execution.
func Execute(ctx context.Context, eng Engine, graph *Graph, input any, opts ...RunOption) (*Execution, error) {
	return eng.Execute(ctx, graph, input, opts...)
}

// Start begins an asynchronous run and returns the live execution.
func Start(ctx context.Context, eng Engine, graph *Graph, input any, opts ...RunOption) (*Execution, error) {
	return eng.StartExecution(ctx, graph, input, opts...)
}

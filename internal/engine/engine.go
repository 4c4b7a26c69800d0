// Package engine implements the workflow scheduler: it validates a
// graph, computes the ready set, dispatches independent nodes
// concurrently, routes port values along edges and finalizes the run.
package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/arkadian-io/flume/internal/persistence"
	"github.com/arkadian-io/flume/pkg/api"
	"github.com/arkadian-io/flume/pkg/registry"
)

// defaultHistoryLimit caps the in-memory recent-execution list when
// the config does not set its own cap.
const defaultHistoryLimit = 1000

// Config describes how to construct an Engine.
type Config struct {
	Registry *registry.Registry
	Observer api.Observer

	// Store receives finished execution records. Optional; runs are
	// always observable in memory through GetExecution.
	Store persistence.ExecutionStore

	// DefaultConcurrency bounds in-flight nodes for runs that do not
	// set their own limit. Zero means unbounded.
	DefaultConcurrency int

	// HistoryLimit caps the in-memory recent-execution list. Zero
	// means defaultHistoryLimit.
	HistoryLimit int
}

type liveRun struct {
	x      *api.Execution
	cancel context.CancelFunc
}

// Engine drives workflow executions. It is safe for concurrent use.
type Engine struct {
	registry *registry.Registry
	observer api.Observer
	store    persistence.ExecutionStore

	defaultLimit int
	historyLimit int

	mu     sync.Mutex
	live   map[string]*liveRun
	recent []*api.Execution
}

var _ api.Engine = (*Engine)(nil)

// New creates an Engine from cfg. A nil observer defaults to the noop
// observer; the registry is required.
func New(cfg Config) *Engine {
	if cfg.Registry == nil {
		panic("engine: registry is required")
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	history := cfg.HistoryLimit
	if history <= 0 {
		history = defaultHistoryLimit
	}
	return &Engine{
		registry:     cfg.Registry,
		observer:     obs,
		store:        cfg.Store,
		defaultLimit: cfg.DefaultConcurrency,
		historyLimit: history,
		live:         make(map[string]*liveRun),
	}
}

// Registry returns the dispatch table this engine resolves types in.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Execute validates graph and runs it to a terminal status.
func (e *Engine) Execute(ctx context.Context, graph *api.Graph, input any, opts ...api.RunOption) (*api.Execution, error) {
	x, runCtx, cfg, err := e.prepare(ctx, graph, input, opts)
	if err != nil {
		return nil, err
	}

	e.run(runCtx, x, cfg.ConcurrencyLimit)
	if runErr := x.Err(); runErr != nil {
		return x, runErr
	}
	return x, nil
}

// StartExecution validates graph, then runs it in the background.
func (e *Engine) StartExecution(ctx context.Context, graph *api.Graph, input any, opts ...api.RunOption) (*api.Execution, error) {
	x, runCtx, cfg, err := e.prepare(ctx, graph, input, opts)
	if err != nil {
		return nil, err
	}

	go e.run(runCtx, x, cfg.ConcurrencyLimit)
	return x, nil
}

// prepare validates the graph and registers a pending execution.
// Validation failures are reported synchronously and never mutate a
// context; no Execution is created for them.
func (e *Engine) prepare(ctx context.Context, graph *api.Graph, input any, opts []api.RunOption) (*api.Execution, context.Context, api.RunConfig, error) {
	cfg := api.RunConfig{ConcurrencyLimit: e.defaultLimit}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := e.validate(graph); err != nil {
		return nil, nil, cfg, err
	}

	id := cfg.ExecutionID
	if id == "" {
		id = uuid.NewString()
	}

	x := api.NewExecution(id, graph, input)
	runCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.live[id] = &liveRun{x: x, cancel: cancel}
	e.mu.Unlock()

	return x, runCtx, cfg, nil
}

// GetExecution returns a live or recently finished execution.
func (e *Engine) GetExecution(id string) (*api.Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if run, ok := e.live[id]; ok {
		return run.x, nil
	}
	for _, x := range e.recent {
		if x.ID() == id {
			return x, nil
		}
	}
	return nil, api.ErrExecutionNotFound
}

// ListExecutions returns snapshots of known executions, newest first.
func (e *Engine) ListExecutions(filter api.ExecutionFilter) []api.Snapshot {
	e.mu.Lock()
	all := make([]*api.Execution, 0, len(e.live)+len(e.recent))
	for _, run := range e.live {
		all = append(all, run.x)
	}
	for i := len(e.recent) - 1; i >= 0; i-- {
		all = append(all, e.recent[i])
	}
	e.mu.Unlock()

	var out []api.Snapshot
	for _, x := range all {
		if filter.WorkflowName != "" && x.Graph().Name != filter.WorkflowName {
			continue
		}
		if filter.Status != "" && x.Status() != filter.Status {
			continue
		}
		out = append(out, x.Snapshot())
	}
	return out
}

// Cancel requests cancellation of a live execution.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	run, ok := e.live[id]
	e.mu.Unlock()
	if !ok {
		return api.ErrExecutionNotFound
	}
	run.cancel()
	return nil
}

// finalize moves a finished run from the live map to the recent list
// and hands the record to the store.
func (e *Engine) finalize(x *api.Execution) {
	e.mu.Lock()
	delete(e.live, x.ID())
	e.recent = append(e.recent, x)
	if len(e.recent) > e.historyLimit {
		e.recent = e.recent[len(e.recent)-e.historyLimit:]
	}
	e.mu.Unlock()

	if e.store != nil {
		_ = e.store.SaveExecution(persistence.ExecutionRecord{
			ID:           x.ID(),
			WorkflowName: x.Graph().Name,
			Status:       string(x.Status()),
			Snapshot:     x.Snapshot(),
			FinishedAt:   x.EndTime(),
		})
	}
}

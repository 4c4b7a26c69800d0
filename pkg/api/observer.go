package api

import (
	"context"
	"log/slog"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay dispatch.
type Observer interface {
	// OnExecutionStart is called once when a run enters StatusRunning,
	// before any node is dispatched.
	OnExecutionStart(ctx context.Context, x *Execution)

	// OnExecutionCompleted is called when a run reaches StatusCompleted.
	OnExecutionCompleted(ctx context.Context, x *Execution)

	// OnExecutionFailed is called when a run reaches StatusFailed.
	OnExecutionFailed(ctx context.Context, x *Execution, err error)

	// OnExecutionCancelled is called when a run reaches StatusCancelled.
	OnExecutionCancelled(ctx context.Context, x *Execution)

	// OnNodeStart is called before a node's executor is invoked.
	OnNodeStart(ctx context.Context, x *Execution, nodeID, nodeType string)

	// OnNodeCompleted is called after a node's executor returns, for
	// both successes and failures (err != nil).
	OnNodeCompleted(ctx context.Context, x *Execution, nodeID, nodeType string, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing. It is the default when
// no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnExecutionStart(ctx context.Context, x *Execution)               {}
func (NoopObserver) OnExecutionCompleted(ctx context.Context, x *Execution)           {}
func (NoopObserver) OnExecutionFailed(ctx context.Context, x *Execution, err error)   {}
func (NoopObserver) OnExecutionCancelled(ctx context.Context, x *Execution)           {}
func (NoopObserver) OnNodeStart(ctx context.Context, x *Execution, id, typ string)    {}
func (NoopObserver) OnNodeCompleted(ctx context.Context, x *Execution, id, typ string, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnExecutionStart(ctx context.Context, x *Execution) {
	for _, o := range c.observers {
		o.OnExecutionStart(ctx, x)
	}
}

func (c *CompositeObserver) OnExecutionCompleted(ctx context.Context, x *Execution) {
	for _, o := range c.observers {
		o.OnExecutionCompleted(ctx, x)
	}
}

func (c *CompositeObserver) OnExecutionFailed(ctx context.Context, x *Execution, err error) {
	for _, o := range c.observers {
		o.OnExecutionFailed(ctx, x, err)
	}
}

func (c *CompositeObserver) OnExecutionCancelled(ctx context.Context, x *Execution) {
	for _, o := range c.observers {
		o.OnExecutionCancelled(ctx, x)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, x *Execution, id, typ string) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, x, id, typ)
	}
}

func (c *CompositeObserver) OnNodeCompleted(ctx context.Context, x *Execution, id, typ string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnNodeCompleted(ctx, x, id, typ, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run and node
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnExecutionStart(ctx context.Context, x *Execution) {
	o.Logger.InfoContext(ctx, "execution_start",
		slog.String("workflow", x.Graph().Name),
		slog.String("execution_id", x.ID()),
		slog.Int("nodes", len(x.Graph().Nodes)),
	)
}

func (o *LoggingObserver) OnExecutionCompleted(ctx context.Context, x *Execution) {
	o.Logger.InfoContext(ctx, "execution_completed",
		slog.String("workflow", x.Graph().Name),
		slog.String("execution_id", x.ID()),
		slog.Duration("duration", x.Duration()),
	)
}

func (o *LoggingObserver) OnExecutionFailed(ctx context.Context, x *Execution, err error) {
	o.Logger.ErrorContext(ctx, "execution_failed",
		slog.String("workflow", x.Graph().Name),
		slog.String("execution_id", x.ID()),
		slog.Duration("duration", x.Duration()),
		slog.String("error", err.Error()),
	)
}

func (o *LoggingObserver) OnExecutionCancelled(ctx context.Context, x *Execution) {
	o.Logger.WarnContext(ctx, "execution_cancelled",
		slog.String("workflow", x.Graph().Name),
		slog.String("execution_id", x.ID()),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, x *Execution, id, typ string) {
	o.Logger.DebugContext(ctx, "node_start",
		slog.String("execution_id", x.ID()),
		slog.String("node_id", id),
		slog.String("node_type", typ),
	)
}

func (o *LoggingObserver) OnNodeCompleted(ctx context.Context, x *Execution, id, typ string, err error, d time.Duration) {
	if err != nil {
		o.Logger.ErrorContext(ctx, "node_failed",
			slog.String("execution_id", x.ID()),
			slog.String("node_id", id),
			slog.String("node_type", typ),
			slog.Duration("duration", d),
			slog.String("error", err.Error()),
		)
		return
	}
	o.Logger.DebugContext(ctx, "node_completed",
		slog.String("execution_id", x.ID()),
		slog.String("node_id", id),
		slog.String("node_type", typ),
		slog.Duration("duration", d),
	)
}

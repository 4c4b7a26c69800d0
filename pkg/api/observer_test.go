package api

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingObserver struct {
	starts, completions, failures, cancellations int
	nodeStarts, nodeCompletions                  int
}

func (c *countingObserver) OnExecutionStart(ctx context.Context, x *Execution)     { c.starts++ }
func (c *countingObserver) OnExecutionCompleted(ctx context.Context, x *Execution) { c.completions++ }
func (c *countingObserver) OnExecutionFailed(ctx context.Context, x *Execution, err error) {
	c.failures++
}
func (c *countingObserver) OnExecutionCancelled(ctx context.Context, x *Execution) {
	c.cancellations++
}
func (c *countingObserver) OnNodeStart(ctx context.Context, x *Execution, id, typ string) {
	c.nodeStarts++
}
func (c *countingObserver) OnNodeCompleted(ctx context.Context, x *Execution, id, typ string, err error, d time.Duration) {
	c.nodeCompletions++
}

func TestCompositeObserverFansOut(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}
	obs := NewCompositeObserver(a, nil, b)

	ctx := context.Background()
	x := NewExecution("obs-1", &Graph{Name: "w"}, nil)

	obs.OnExecutionStart(ctx, x)
	obs.OnNodeStart(ctx, x, "n", "test.noop")
	obs.OnNodeCompleted(ctx, x, "n", "test.noop", nil, time.Millisecond)
	obs.OnExecutionFailed(ctx, x, errors.New("boom"))
	obs.OnExecutionCancelled(ctx, x)
	obs.OnExecutionCompleted(ctx, x)

	for _, c := range []*countingObserver{a, b} {
		if c.starts != 1 || c.completions != 1 || c.failures != 1 || c.cancellations != 1 {
			t.Fatalf("run events not forwarded: %+v", c)
		}
		if c.nodeStarts != 1 || c.nodeCompletions != 1 {
			t.Fatalf("node events not forwarded: %+v", c)
		}
	}
}

func TestCompositeObserverCollapses(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatalf("empty composite should collapse to noop")
	}
	if _, ok := NewCompositeObserver(nil, nil).(NoopObserver); !ok {
		t.Fatalf("all-nil composite should collapse to noop")
	}

	single := &countingObserver{}
	if got := NewCompositeObserver(single); got != Observer(single) {
		t.Fatalf("single-observer composite should return the observer itself")
	}
}

func TestNewLoggingObserverNilLogger(t *testing.T) {
	obs := NewLoggingObserver(nil)
	x := NewExecution("obs-2", &Graph{Name: "w"}, nil)
	// Must not panic.
	obs.OnExecutionStart(context.Background(), x)
	obs.OnNodeCompleted(context.Background(), x, "n", "test.noop", nil, 0)
}

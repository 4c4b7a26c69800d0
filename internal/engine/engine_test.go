package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arkadian-io/flume/pkg/api"
	"github.com/arkadian-io/flume/pkg/registry"
)

// passthrough forwards its main input to its main output.
func passthrough() api.Executor {
	return api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		return api.Values{api.PortMain: inputs[api.PortMain]}, nil
	})
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg := registry.New()
	if err := reg.Register("test.pass", passthrough(), api.Schema{
		Inputs:  []api.PortSpec{{Name: api.PortMain, Type: "any", Required: true}},
		Outputs: []api.PortSpec{{Name: api.PortMain, Type: "any"}},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return New(Config{Registry: reg})
}

func chainGraph(ids ...string) *api.Graph {
	g := &api.Graph{Name: "chain"}
	for _, id := range ids {
		g.Nodes = append(g.Nodes, api.NodeInstance{ID: id, Type: "test.pass"})
	}
	for i := 0; i+1 < len(ids); i++ {
		g.Edges = append(g.Edges, api.Edge{
			SourceNode: ids[i], SourcePort: api.PortMain,
			TargetNode: ids[i+1], TargetPort: api.PortMain,
		})
	}
	return g
}

func TestExecuteChain(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Execute(context.Background(), chainGraph("a", "b", "c"), "payload")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if x.Status() != api.StatusCompleted {
		t.Fatalf("status = %s", x.Status())
	}
	for _, id := range []string{"a", "b", "c"} {
		if !x.Executed(id) {
			t.Fatalf("node %s did not run", id)
		}
	}
	// The single terminal node's outputs are the run result.
	result := x.Result().(api.Values)
	if result[api.PortMain] != "payload" {
		t.Fatalf("result = %v", result)
	}
	if executed, total, pct := x.Progress(); executed != total || pct != 100 {
		t.Fatalf("completed run progress = %d/%d %.0f%%", executed, total, pct)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	e := newTestEngine(t)
	g := chainGraph("a", "b", "c")
	g.Edges = append(g.Edges, api.Edge{SourceNode: "c", SourcePort: api.PortMain, TargetNode: "b", TargetPort: api.PortMain})

	_, err := e.Execute(context.Background(), g, nil)
	var verr *api.ValidationError
	if !errors.As(err, &verr) || verr.Reason != "cycle" {
		t.Fatalf("err = %v, want cycle ValidationError", err)
	}
	if len(verr.Cycle) != 2 || verr.Cycle[0] != "b" || verr.Cycle[1] != "c" {
		t.Fatalf("cycle = %v, want [b c]", verr.Cycle)
	}
	// Validation failures never create an execution.
	if got := e.ListExecutions(api.ExecutionFilter{}); len(got) != 0 {
		t.Fatalf("validation failure left executions behind: %v", got)
	}
}

func TestValidateRejectsDuplicateAndUnknown(t *testing.T) {
	e := newTestEngine(t)

	dup := chainGraph("a", "a")
	_, err := e.Execute(context.Background(), dup, nil)
	var verr *api.ValidationError
	if !errors.As(err, &verr) || verr.Reason != "duplicate-node" {
		t.Fatalf("duplicate err = %v", err)
	}

	unknown := &api.Graph{Name: "w", Nodes: []api.NodeInstance{{ID: "a", Type: "test.ghost"}}}
	_, err = e.Execute(context.Background(), unknown, nil)
	if !errors.As(err, &verr) || verr.Reason != "unknown-type" {
		t.Fatalf("unknown type err = %v", err)
	}

	badEdge := chainGraph("a", "b")
	badEdge.Edges = append(badEdge.Edges, api.Edge{SourceNode: "b", SourcePort: api.PortMain, TargetNode: "ghost", TargetPort: api.PortMain})
	_, err = e.Execute(context.Background(), badEdge, nil)
	if !errors.As(err, &verr) || verr.Reason != "unknown-node" {
		t.Fatalf("bad edge err = %v", err)
	}

	empty := &api.Graph{Name: "w"}
	if _, err := e.Execute(context.Background(), empty, nil); err == nil {
		t.Fatalf("expected error for empty graph")
	}
}

func TestValidateAfterUnregisterFails(t *testing.T) {
	e := newTestEngine(t)
	g := chainGraph("a", "b")

	if _, err := e.Execute(context.Background(), g, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	e.Registry().Unregister("test.pass")

	_, err := e.Execute(context.Background(), g, nil)
	var verr *api.ValidationError
	if !errors.As(err, &verr) || verr.Reason != "unknown-type" {
		t.Fatalf("err after unregister = %v", err)
	}
}

func TestValidateUnsatisfiedRequiredInput(t *testing.T) {
	e := newTestEngine(t)

	// b's required main port is fed through a side port only.
	g := &api.Graph{
		Name: "w",
		Nodes: []api.NodeInstance{
			{ID: "a", Type: "test.pass"},
			{ID: "b", Type: "test.pass"},
		},
		Edges: []api.Edge{
			{SourceNode: "a", SourcePort: api.PortMain, TargetNode: "b", TargetPort: "aux"},
		},
	}
	_, err := e.Execute(context.Background(), g, nil)
	var verr *api.ValidationError
	if !errors.As(err, &verr) || verr.Reason != "unsatisfied-input" || verr.NodeID != "b" {
		t.Fatalf("err = %v", err)
	}
}

func TestDiamondFanOutFanIn(t *testing.T) {
	reg := registry.New()
	tag := func(label string) api.Executor {
		return api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
			return api.Values{api.PortMain: label}, nil
		})
	}
	for _, typ := range []string{"test.left", "test.right"} {
		if err := reg.Register(typ, tag(typ), api.Schema{
			Inputs: []api.PortSpec{{Name: api.PortMain, Required: true}},
		}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	if err := reg.Register("test.pass", passthrough(), api.Schema{
		Inputs: []api.PortSpec{{Name: api.PortMain, Required: true}},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e := New(Config{Registry: reg})

	g := &api.Graph{
		Name: "diamond",
		Nodes: []api.NodeInstance{
			{ID: "src", Type: "test.pass"},
			{ID: "l", Type: "test.left"},
			{ID: "r", Type: "test.right"},
			{ID: "join", Type: "test.pass"},
		},
		Edges: []api.Edge{
			{SourceNode: "src", SourcePort: api.PortMain, TargetNode: "l", TargetPort: api.PortMain},
			{SourceNode: "src", SourcePort: api.PortMain, TargetNode: "r", TargetPort: api.PortMain},
			{SourceNode: "l", SourcePort: api.PortMain, TargetNode: "join", TargetPort: api.PortMain},
			{SourceNode: "r", SourcePort: api.PortMain, TargetNode: "join", TargetPort: api.PortMain},
		},
	}

	x, err := e.Execute(context.Background(), g, "seed")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !x.Executed("l") || !x.Executed("r") || !x.Executed("join") {
		t.Fatalf("executed = %v", x.ExecutedNodes())
	}

	// Fan-in keeps whichever branch completed last.
	rec, _ := x.NodeRecord("join")
	got := rec.Output[api.PortMain]
	if got != "test.left" && got != "test.right" {
		t.Fatalf("join input = %v", got)
	}
}

func TestBranchSkip(t *testing.T) {
	reg := registry.New()
	// Routes its input to the "pick" output port only.
	if err := reg.Register("test.router", api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		return api.Values{"pick": inputs[api.PortMain]}, nil
	}), api.Schema{
		Inputs:  []api.PortSpec{{Name: api.PortMain}},
		Outputs: []api.PortSpec{{Name: "pick"}, {Name: "skip"}},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register("test.pass", passthrough(), api.Schema{
		Inputs: []api.PortSpec{{Name: api.PortMain, Required: true}},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e := New(Config{Registry: reg})

	g := &api.Graph{
		Name: "branch",
		Nodes: []api.NodeInstance{
			{ID: "router", Type: "test.router"},
			{ID: "taken", Type: "test.pass"},
			{ID: "skipped", Type: "test.pass"},
		},
		Edges: []api.Edge{
			{SourceNode: "router", SourcePort: "pick", TargetNode: "taken", TargetPort: api.PortMain},
			{SourceNode: "router", SourcePort: "skip", TargetNode: "skipped", TargetPort: api.PortMain},
		},
	}

	x, err := e.Execute(context.Background(), g, "v")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if x.Status() != api.StatusCompleted {
		t.Fatalf("status = %s", x.Status())
	}
	if !x.Executed("taken") {
		t.Fatalf("taken branch did not run")
	}
	// The unpopulated port's branch never runs, and that is completion,
	// not failure.
	if x.Executed("skipped") {
		t.Fatalf("skipped branch ran")
	}
}

func TestTwoEntryNodesBothRun(t *testing.T) {
	e := newTestEngine(t)

	g := &api.Graph{
		Name: "join",
		Nodes: []api.NodeInstance{
			{ID: "a", Type: "test.pass"},
			{ID: "b", Type: "test.pass"},
			{ID: "sink", Type: "test.pass"},
		},
		Edges: []api.Edge{
			{SourceNode: "a", SourcePort: api.PortMain, TargetNode: "sink", TargetPort: api.PortMain},
			{SourceNode: "b", SourcePort: api.PortMain, TargetNode: "sink", TargetPort: api.PortMain},
		},
	}

	x, err := e.Execute(context.Background(), g, "in")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !x.Executed("a") || !x.Executed("b") || !x.Executed("sink") {
		t.Fatalf("executed = %v", x.ExecutedNodes())
	}
}

func TestFanInWaitsForAllPredecessors(t *testing.T) {
	reg := registry.New()
	var slowDone atomic.Bool

	if err := reg.Register("test.fast", api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		return api.Values{api.PortMain: "fast"}, nil
	}), api.Schema{Inputs: []api.PortSpec{{Name: api.PortMain}}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register("test.slow", api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		time.Sleep(30 * time.Millisecond)
		slowDone.Store(true)
		return api.Values{api.PortMain: "slow"}, nil
	}), api.Schema{Inputs: []api.PortSpec{{Name: api.PortMain}}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var joinAfterSlow atomic.Bool
	var joinInput atomic.Value
	if err := reg.Register("test.join", api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		joinAfterSlow.Store(slowDone.Load())
		joinInput.Store(inputs[api.PortMain])
		return api.Values{}, nil
	}), api.Schema{
		Inputs: []api.PortSpec{{Name: api.PortMain, Required: true}},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e := New(Config{Registry: reg})

	g := &api.Graph{
		Name: "fan-in",
		Nodes: []api.NodeInstance{
			{ID: "f", Type: "test.fast"},
			{ID: "s", Type: "test.slow"},
			{ID: "join", Type: "test.join"},
		},
		Edges: []api.Edge{
			{SourceNode: "f", SourcePort: api.PortMain, TargetNode: "join", TargetPort: api.PortMain},
			{SourceNode: "s", SourcePort: api.PortMain, TargetNode: "join", TargetPort: api.PortMain},
		},
	}

	x, err := e.Execute(context.Background(), g, "in")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if x.Status() != api.StatusCompleted {
		t.Fatalf("status = %s", x.Status())
	}
	// The join must not start until every edge into its port has fired.
	if !joinAfterSlow.Load() {
		t.Fatalf("join dispatched before the slow predecessor finished")
	}
	// Last write wins within the port, and the slow branch arrives last.
	if got := joinInput.Load(); got != "slow" {
		t.Fatalf("join input = %v, want slow", got)
	}
}

func TestLateOptionalInputDoesNotReachRunningNode(t *testing.T) {
	reg := registry.New()
	lateDone := make(chan struct{})

	if err := reg.Register("test.src", passthrough(), api.Schema{
		Inputs: []api.PortSpec{{Name: api.PortMain}},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register("test.late", api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		time.Sleep(20 * time.Millisecond)
		close(lateDone)
		return api.Values{api.PortMain: "late"}, nil
	}), api.Schema{Inputs: []api.PortSpec{{Name: api.PortMain}}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var sawExtra atomic.Bool
	if err := reg.Register("test.join", api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		// Wait until the optional-port predecessor has completed and
		// routed; only then inspect the inputs this node was handed.
		<-lateDone
		_, ok := inputs["extra"]
		sawExtra.Store(ok)
		return api.Values{}, nil
	}), api.Schema{
		Inputs: []api.PortSpec{
			{Name: api.PortMain, Required: true},
			{Name: "extra"},
		},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e := New(Config{Registry: reg})

	g := &api.Graph{
		Name: "late-input",
		Nodes: []api.NodeInstance{
			{ID: "a", Type: "test.src"},
			{ID: "b", Type: "test.late"},
			{ID: "join", Type: "test.join"},
		},
		Edges: []api.Edge{
			{SourceNode: "a", SourcePort: api.PortMain, TargetNode: "join", TargetPort: api.PortMain},
			{SourceNode: "b", SourcePort: api.PortMain, TargetNode: "join", TargetPort: "extra"},
		},
	}

	x, err := e.Execute(context.Background(), g, "in")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if x.Status() != api.StatusCompleted {
		t.Fatalf("status = %s", x.Status())
	}
	// Routing after dispatch writes into the scheduler's copy, never
	// into the map the running executor holds.
	if sawExtra.Load() {
		t.Fatalf("value routed after dispatch leaked into a running node's inputs")
	}
}

func TestNodeFailureIsFatal(t *testing.T) {
	reg := registry.New()
	boom := errors.New("boom")
	if err := reg.Register("test.fail", api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		return nil, boom
	}), api.Schema{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register("test.pass", passthrough(), api.Schema{
		Inputs: []api.PortSpec{{Name: api.PortMain, Required: true}},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e := New(Config{Registry: reg})

	g := &api.Graph{
		Name: "failing",
		Nodes: []api.NodeInstance{
			{ID: "bad", Type: "test.fail"},
			{ID: "after", Type: "test.pass"},
		},
		Edges: []api.Edge{
			{SourceNode: "bad", SourcePort: api.PortMain, TargetNode: "after", TargetPort: api.PortMain},
		},
	}

	x, err := e.Execute(context.Background(), g, nil)
	if err == nil {
		t.Fatalf("expected run error")
	}
	if x.Status() != api.StatusFailed {
		t.Fatalf("status = %s", x.Status())
	}

	var xerr *api.ExecutionError
	if !errors.As(err, &xerr) || xerr.NodeID != "bad" {
		t.Fatalf("err = %v, want ExecutionError for node bad", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if x.Executed("after") {
		t.Fatalf("downstream node ran after failure")
	}

	rec, ok := x.NodeRecord("bad")
	if !ok || rec.Status != api.NodeStatusFailed {
		t.Fatalf("failed node record = %+v, %v", rec, ok)
	}
}

func TestTimeoutErrorKeepsTypeAndGainsNodeID(t *testing.T) {
	reg := registry.New()
	if err := reg.Register("test.slow", api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		return nil, &api.TimeoutError{Budget: 50}
	}), api.Schema{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e := New(Config{Registry: reg})

	g := &api.Graph{Name: "w", Nodes: []api.NodeInstance{{ID: "slow", Type: "test.slow"}}}
	_, err := e.Execute(context.Background(), g, nil)

	var terr *api.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if terr.NodeID != "slow" {
		t.Fatalf("node id not attributed: %+v", terr)
	}
}

func TestEntrySeedingSkipsOptionalSidePorts(t *testing.T) {
	reg := registry.New()
	var seen atomic.Value
	if err := reg.Register("test.record", api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		copied := api.Values{}
		for k, v := range inputs {
			copied[k] = v
		}
		seen.Store(copied)
		return api.Values{}, nil
	}), api.Schema{
		Inputs: []api.PortSpec{
			{Name: api.PortMain},
			{Name: "data", Required: true},
			{Name: "body"},
		},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e := New(Config{Registry: reg})

	g := &api.Graph{Name: "seeded", Nodes: []api.NodeInstance{{ID: "entry", Type: "test.record"}}}
	if _, err := e.Execute(context.Background(), g, "in"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	inputs := seen.Load().(api.Values)
	if inputs[api.PortMain] != "in" || inputs["data"] != "in" {
		t.Fatalf("main and required ports not bound: %v", inputs)
	}
	// Optional side ports stay empty so the run input never poses as,
	// say, an HTTP request body.
	if _, ok := inputs["body"]; ok {
		t.Fatalf("run input leaked into optional side port: %v", inputs)
	}
}

func TestHistoryLimitConfigurable(t *testing.T) {
	reg := registry.New()
	if err := reg.Register("test.pass", passthrough(), api.Schema{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e := New(Config{Registry: reg, HistoryLimit: 2})

	for _, id := range []string{"one", "two", "three"} {
		g := &api.Graph{Name: "w", Nodes: []api.NodeInstance{{ID: "n", Type: "test.pass"}}}
		if _, err := e.Execute(context.Background(), g, nil, api.WithExecutionID(id)); err != nil {
			t.Fatalf("Execute %s failed: %v", id, err)
		}
	}

	got := e.ListExecutions(api.ExecutionFilter{})
	if len(got) != 2 {
		t.Fatalf("history holds %d executions, limit is 2", len(got))
	}
	if got[0].ExecutionID != "three" || got[1].ExecutionID != "two" {
		t.Fatalf("oldest run not evicted: %v, %v", got[0].ExecutionID, got[1].ExecutionID)
	}
	if _, err := e.GetExecution("one"); !errors.Is(err, api.ErrExecutionNotFound) {
		t.Fatalf("evicted run still retrievable: %v", err)
	}
}

func TestConcurrencyLimit(t *testing.T) {
	reg := registry.New()

	var current, peak atomic.Int32
	if err := reg.Register("test.busy", api.ExecutorFunc(func(ctx context.Context, inputs, params api.Values, run *api.Execution) (api.Values, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return api.Values{}, nil
	}), api.Schema{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e := New(Config{Registry: reg, DefaultConcurrency: 2})

	g := &api.Graph{Name: "wide"}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		g.Nodes = append(g.Nodes, api.NodeInstance{ID: id, Type: "test.busy"})
	}

	x, err := e.Execute(context.Background(), g, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if x.Status() != api.StatusCompleted {
		t.Fatalf("status = %s", x.Status())
	}
	if p := peak.Load(); p > 2 {
		t.Fatalf("observed %d concurrent nodes, limit is 2", p)
	}
}

package flume

import (
	"context"
	"testing"
)

func TestNewEngine_RunsBuiltinChain(t *testing.T) {
	eng, reg, err := NewEngine(Options{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if !reg.Has("data.transform") || !reg.Has("http.request") {
		t.Fatalf("builtins not registered")
	}

	g := NewGraph("enrich").
		Node("note", "core.log", Values{"message": "processing {customer}"}).
		Node("shape", "data.transform", Values{"script": "set status \"ok\""}).
		Connect("note", PortMain, "shape", "data").
		Build()

	x, err := Execute(context.Background(), eng, g, map[string]any{"customer": "acme"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if x.Status() != StatusCompleted {
		t.Fatalf("status = %s", x.Status())
	}

	result := x.Result().(Values)
	out := result["result"].(map[string]any)
	if out["customer"] != "acme" || out["status"] != "ok" {
		t.Fatalf("result = %v", out)
	}
}

func TestNewEngine_RejectsInvalidGraph(t *testing.T) {
	eng, _, err := NewEngine(Options{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	g := NewGraph("loop").
		Node("a", "core.log", nil).
		Node("b", "core.log", nil).
		Then("a", "b").
		Then("b", "a").
		Build()

	if _, err := Execute(context.Background(), eng, g, nil); err == nil {
		t.Fatalf("expected validation failure")
	}
}

func TestNewBareEngine_CustomNode(t *testing.T) {
	reg := newTestRegistry(t)
	eng := NewBareEngine(reg, Options{Concurrency: 2})

	g := NewGraph("custom").Node("only", "double", nil).Build()
	x, err := eng.Execute(context.Background(), g, map[string]any{"n": 21})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := x.Result().(Values)[PortMain].(Values)
	if out["n"] != 42 {
		t.Fatalf("result = %v", out)
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	err := reg.Register("double", ExecutorFunc(func(ctx context.Context, inputs, params Values, run *Execution) (Values, error) {
		in, _ := inputs[PortMain].(map[string]any)
		n, _ := in["n"].(int)
		return Values{PortMain: Values{"n": n * 2}}, nil
	}), Schema{DisplayName: "Double"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

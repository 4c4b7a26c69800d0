package flume

import (
	"testing"
)

func TestGraphBuilder_Build(t *testing.T) {
	g := NewGraph("builder-sample").
		Node("fetch", "http.request", Values{"url": "https://example.com"}).
		NamedNode("shape", "data.transform", "Shape payload", Values{"script": "set kind \"demo\""}).
		Node("split", "data.filter", Values{"conditions": []any{}}).
		Then("fetch", "shape").
		Connect("shape", "", "split", "").
		Build()

	if g.Name != "builder-sample" {
		t.Fatalf("unexpected name: %s", g.Name)
	}
	if len(g.Nodes) != 3 || len(g.Edges) != 2 {
		t.Fatalf("unexpected shape: %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}

	// Empty ports default to the main port.
	for _, e := range g.Edges {
		if e.SourcePort != PortMain || e.TargetPort != PortMain {
			t.Fatalf("ports not defaulted: %+v", e)
		}
	}

	if n, ok := g.Node("shape"); !ok || n.Name != "Shape payload" {
		t.Fatalf("named node not preserved")
	}
}

func TestGraphBuilder_BuildIsACopy(t *testing.T) {
	b := NewGraph("copy").Node("a", "core.log", nil)
	first := b.Build()
	b.Node("b", "log", nil)
	second := b.Build()

	if len(first.Nodes) != 1 || len(second.Nodes) != 2 {
		t.Fatalf("builds share state: %d and %d nodes", len(first.Nodes), len(second.Nodes))
	}
}

func TestGraphBuilder_PanicsOnBadInput(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		defer func() {
			if recover() == nil {
				t.Fatalf("%s: expected panic", name)
			}
		}()
		fn()
	}

	mustPanic("empty id", func() { NewGraph("x").Node("", "core.log", nil) })
	mustPanic("empty type", func() { NewGraph("x").Node("a", "", nil) })
	mustPanic("empty endpoint", func() { NewGraph("x").Connect("", "", "b", "") })
}

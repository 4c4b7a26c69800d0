package nodes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/arkadian-io/flume/pkg/api"
)

func testRun() *api.Execution {
	return api.NewExecution("test-run", &api.Graph{Name: "w"}, nil)
}

func TestDelayPassesThrough(t *testing.T) {
	start := time.Now()
	out, err := executeDelay(context.Background(), api.Values{api.PortMain: "payload"}, api.Values{
		"duration": 10.0,
	}, testRun())
	if err != nil {
		t.Fatalf("executeDelay failed: %v", err)
	}
	if out[api.PortMain] != "payload" {
		t.Fatalf("output = %v", out)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("delay returned too early")
	}
}

func TestDelayInterruptedByCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := executeDelay(ctx, api.Values{}, api.Values{"duration": 60000.0}, testRun())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLogRendersTemplate(t *testing.T) {
	n := &logNode{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	out, err := n.Execute(context.Background(), api.Values{
		api.PortMain: map[string]any{"user": map[string]any{"name": "Ada"}},
	}, api.Values{"message": "hello {user.name}"}, testRun())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	// Passthrough keeps the pipeline intact.
	if _, ok := out[api.PortMain].(map[string]any); !ok {
		t.Fatalf("output = %v", out)
	}
}

func TestSetVariable(t *testing.T) {
	run := testRun()
	out, err := executeSetVariable(context.Background(), api.Values{
		api.PortMain: map[string]any{"id": "42"},
	}, api.Values{"key": "lastID", "value": "{id}"}, run)
	if err != nil {
		t.Fatalf("executeSetVariable failed: %v", err)
	}
	if v, _ := run.Variables().Get("lastID"); v != "42" {
		t.Fatalf("lastID = %v", v)
	}
	if out[api.PortMain].(map[string]any)["id"] != "42" {
		t.Fatalf("output = %v", out)
	}
}

func TestSetVariableRequiresKey(t *testing.T) {
	if _, err := executeSetVariable(context.Background(), api.Values{}, api.Values{}, testRun()); err == nil {
		t.Fatalf("expected error without key")
	}
}

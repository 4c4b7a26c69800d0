package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arkadian-io/flume/internal/expr"
	"github.com/arkadian-io/flume/pkg/api"
)

func delaySchema() api.Schema {
	return api.Schema{
		DisplayName: "Delay",
		Description: "Waits for a configured duration, then passes its input through.",
		Category:    "flow",
		Inputs: []api.PortSpec{
			{Name: api.PortMain, Type: "any"},
		},
		Outputs: []api.PortSpec{
			{Name: api.PortMain, Type: "any"},
		},
		Parameters: []api.ParamSpec{
			{Name: "duration", Type: "number", Default: 1000, Description: "Delay in milliseconds"},
		},
	}
}

// executeDelay is context-aware: a cancelled run interrupts the wait.
func executeDelay(ctx context.Context, inputs api.Values, params api.Values, run *api.Execution) (api.Values, error) {
	d := paramDurationMS(params, "duration", time.Second)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
	}
	return api.Values{api.PortMain: inputs[api.PortMain]}, nil
}

func logSchema() api.Schema {
	return api.Schema{
		DisplayName: "Log",
		Description: "Writes a structured log line and passes its input through.",
		Category:    "core",
		Inputs: []api.PortSpec{
			{Name: api.PortMain, Type: "any"},
		},
		Outputs: []api.PortSpec{
			{Name: api.PortMain, Type: "any"},
		},
		Parameters: []api.ParamSpec{
			{Name: "message", Type: "string", Default: "", Description: "Message template; {path} reads from the input"},
		},
	}
}

type logNode struct {
	logger *slog.Logger
}

func (n *logNode) Execute(ctx context.Context, inputs api.Values, params api.Values, run *api.Execution) (api.Values, error) {
	message := paramString(params, "message", "")
	if scope, ok := inputs[api.PortMain].(map[string]any); ok {
		message = expr.Render(message, scope)
	}
	n.logger.InfoContext(ctx, "workflow_log",
		slog.String("execution_id", run.ID()),
		slog.String("message", message),
	)
	return api.Values{api.PortMain: inputs[api.PortMain]}, nil
}

func setVariableSchema() api.Schema {
	return api.Schema{
		DisplayName: "Set Variable",
		Description: "Writes a run-scoped variable, then passes its input through.",
		Category:    "core",
		Inputs: []api.PortSpec{
			{Name: api.PortMain, Type: "any"},
		},
		Outputs: []api.PortSpec{
			{Name: api.PortMain, Type: "any"},
		},
		Parameters: []api.ParamSpec{
			{Name: "key", Type: "string", Required: true},
			{Name: "value", Type: "string", Default: "", Description: "Value template; {path} reads from the input"},
		},
	}
}

func executeSetVariable(ctx context.Context, inputs api.Values, params api.Values, run *api.Execution) (api.Values, error) {
	key := paramString(params, "key", "")
	if key == "" {
		return nil, fmt.Errorf("key parameter is required")
	}
	value := paramString(params, "value", "")
	if scope, ok := inputs[api.PortMain].(map[string]any); ok {
		value = expr.Render(value, scope)
	}
	run.Variables().Set(key, value)
	return api.Values{api.PortMain: inputs[api.PortMain]}, nil
}

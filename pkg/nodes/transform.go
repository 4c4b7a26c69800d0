package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/arkadian-io/flume/internal/expr"
	"github.com/arkadian-io/flume/pkg/api"
)

// defaultTransformTimeout bounds a transform program that does not
// declare its own budget.
const defaultTransformTimeout = 5000 * time.Millisecond

// applyProgram runs the parsed program. A variable so tests can stand
// in a slow program and drive the timeout branch.
var applyProgram = func(program *expr.Program, input any) (any, error) {
	return program.Apply(input)
}

func transformSchema() api.Schema {
	return api.Schema{
		DisplayName: "Data Transform",
		Description: "Applies a transform program to the incoming data.",
		Category:    "data",
		Inputs: []api.PortSpec{
			{Name: "data", Type: "any", Required: true},
		},
		Outputs: []api.PortSpec{
			{Name: "result", Type: "any"},
		},
		Parameters: []api.ParamSpec{
			{Name: "script", Type: "string", Required: true, Description: "Transform program, one command per line"},
			{Name: "timeout", Type: "number", Default: 5000, Description: "Execution budget in milliseconds"},
		},
	}
}

// executeTransform races the program against its timeout. On timeout
// the worker goroutine is abandoned, not killed; it finishes against a
// result nobody reads. That matches the documented best-effort bound.
func executeTransform(ctx context.Context, inputs api.Values, params api.Values, run *api.Execution) (api.Values, error) {
	script := paramString(params, "script", "")
	if script == "" {
		return nil, fmt.Errorf("script parameter is required")
	}

	program, err := expr.Parse(script)
	if err != nil {
		return nil, err
	}

	budget := paramDurationMS(params, "timeout", defaultTransformTimeout)

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := applyProgram(program, inputs["data"])
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		return api.Values{"result": o.result}, nil
	case <-time.After(budget):
		return nil, &api.TimeoutError{Budget: budget}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

package nodes

import (
	"context"
	"fmt"

	"github.com/arkadian-io/flume/pkg/api"
)

// Caller is the uniform service-call capability behind the
// integration.call node: one request-building wrapper per third-party
// service, stateless, resolved by integration id.
type Caller interface {
	Name() string
	Call(ctx context.Context, operation string, parameters api.Values) (api.Values, error)
}

// CallerResolver maps an integration id to its caller.
type CallerResolver func(integrationID string) (Caller, bool)

func integrationSchema() api.Schema {
	return api.Schema{
		DisplayName: "Integration Call",
		Description: "Invokes an operation on a connected third-party service.",
		Category:    "integrations",
		Inputs: []api.PortSpec{
			{Name: "parameters", Type: "object"},
		},
		Outputs: []api.PortSpec{
			{Name: "result", Type: "any"},
		},
		Parameters: []api.ParamSpec{
			{Name: "integration", Type: "string", Required: true},
			{Name: "operation", Type: "string", Required: true},
			{Name: "parameters", Type: "object"},
		},
	}
}

type integrationNode struct {
	resolve CallerResolver
}

func (n *integrationNode) Execute(ctx context.Context, inputs api.Values, params api.Values, run *api.Execution) (api.Values, error) {
	integrationID := paramString(params, "integration", "")
	operation := paramString(params, "operation", "")
	if integrationID == "" || operation == "" {
		return nil, fmt.Errorf("integration and operation parameters are required")
	}

	if n.resolve == nil {
		return nil, fmt.Errorf("no integration resolver configured")
	}
	caller, ok := n.resolve(integrationID)
	if !ok {
		return nil, fmt.Errorf("unknown integration %q", integrationID)
	}

	callParams := api.Values{}
	if m, ok := params["parameters"].(map[string]any); ok {
		for k, v := range m {
			callParams[k] = v
		}
	}
	// Values routed to the parameters port override the fixed ones.
	if m, ok := inputs["parameters"].(map[string]any); ok {
		for k, v := range m {
			callParams[k] = v
		}
	}

	result, err := caller.Call(ctx, operation, callParams)
	if err != nil {
		return nil, &api.ExecutionError{Op: fmt.Sprintf("%s.%s", integrationID, operation), Err: err}
	}
	return api.Values{"result": result}, nil
}

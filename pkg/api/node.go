package api

import "context"

// Values maps port names to the data flowing through them. It is used
// both for a node's assembled inputs and for the outputs it returns.
type Values map[string]any

// Executor is the contract every node type implements.
//
// inputs holds one entry per input port that received a value; optional
// ports with no feeding edge are simply absent. params is the node
// instance's fixed configuration. run gives read/write access to the
// run's variables and read access to prior node records, for
// coordination beyond direct edges.
//
// The returned Values contains one entry per output port the node
// wishes to activate. Ports left unpopulated do not propagate along
// their edges; that is the branching mechanism.
//
// ctx is cancelled when the run is cancelled or fails; long-running
// executors should honor it.
type Executor interface {
	Execute(ctx context.Context, inputs Values, params Values, run *Execution) (Values, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, inputs Values, params Values, run *Execution) (Values, error)

func (f ExecutorFunc) Execute(ctx context.Context, inputs Values, params Values, run *Execution) (Values, error) {
	return f(ctx, inputs, params, run)
}

// PortSpec describes one named input or output port of a node type.
type PortSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// ParamSpec describes one configuration value of a node type.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Default     any    `json:"default,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// Schema is the declared shape of a node type: its ports and
// parameters. It is registered once alongside the executor and shared
// across runs; the engine uses Inputs to decide when a node is ready.
type Schema struct {
	DisplayName string      `json:"displayName,omitempty"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category,omitempty"`
	Inputs      []PortSpec  `json:"inputs,omitempty"`
	Outputs     []PortSpec  `json:"outputs,omitempty"`
	Parameters  []ParamSpec `json:"parameters,omitempty"`
}

// Input returns the input port spec with the given name.
func (s *Schema) Input(name string) (PortSpec, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}

// ParamDefault returns the declared default for a parameter, if any.
func (s *Schema) ParamDefault(name string) (any, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p.Default, p.Default != nil
		}
	}
	return nil, false
}

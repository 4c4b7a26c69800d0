package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/arkadian-io/flume/internal/expr"
	"github.com/arkadian-io/flume/pkg/api"
)

// Filter condition operators.
const (
	OpEquals         = "equals"
	OpNotEquals      = "notEquals"
	OpContains       = "contains"
	OpNotContains    = "notContains"
	OpGreaterThan    = "greaterThan"
	OpLessThan       = "lessThan"
	OpGreaterOrEqual = "greaterOrEqual"
	OpLessOrEqual    = "lessOrEqual"
	OpExists         = "exists"
	OpNotExists      = "notExists"
)

func filterSchema() api.Schema {
	return api.Schema{
		DisplayName: "Filter",
		Description: "Partitions items into matched and unmatched branches by field conditions.",
		Category:    "data",
		Inputs: []api.PortSpec{
			{Name: "items", Type: "array", Required: true},
		},
		Outputs: []api.PortSpec{
			{Name: "matched", Type: "array"},
			{Name: "unmatched", Type: "array"},
		},
		Parameters: []api.ParamSpec{
			{Name: "conditions", Type: "array", Default: []any{}, Description: "List of {field, operator, value} conditions"},
			{Name: "combine", Type: "string", Default: "AND", Description: "AND requires every condition, OR any"},
		},
	}
}

type condition struct {
	field    string
	operator string
	value    any
}

// executeFilter splits inputs.items by the configured conditions. Only
// non-empty partitions populate their output port, so a branch with no
// items never activates its downstream edges.
func executeFilter(ctx context.Context, inputs api.Values, params api.Values, run *api.Execution) (api.Values, error) {
	items := asItems(inputs["items"])

	conds, err := parseConditions(params["conditions"])
	if err != nil {
		return nil, err
	}

	combine := strings.ToUpper(paramString(params, "combine", "AND"))
	if combine != "AND" && combine != "OR" {
		return nil, fmt.Errorf("invalid combine mode %q", combine)
	}

	var matched, unmatched []any
	for _, item := range items {
		if matchItem(item, conds, combine) {
			matched = append(matched, item)
		} else {
			unmatched = append(unmatched, item)
		}
	}

	out := api.Values{}
	if len(matched) > 0 {
		out["matched"] = matched
	}
	if len(unmatched) > 0 {
		out["unmatched"] = unmatched
	}
	return out, nil
}

func asItems(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out
	default:
		return []any{t}
	}
}

func parseConditions(raw any) ([]condition, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("conditions must be a list")
	}
	conds := make([]condition, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("condition %d must be an object", i)
		}
		c := condition{
			field:    expr.Stringify(m["field"]),
			operator: expr.Stringify(m["operator"]),
			value:    m["value"],
		}
		if c.operator == "" {
			return nil, fmt.Errorf("condition %d: operator is required", i)
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// matchItem evaluates the condition set. An empty set matches every
// item.
func matchItem(item any, conds []condition, combine string) bool {
	if len(conds) == 0 {
		return true
	}
	for _, c := range conds {
		ok := evalCondition(item, c)
		if combine == "AND" && !ok {
			return false
		}
		if combine == "OR" && ok {
			return true
		}
	}
	return combine == "AND"
}

func evalCondition(item any, c condition) bool {
	fieldValue, present := expr.Lookup(item, c.field)

	switch c.operator {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	case OpEquals:
		return present && expr.Stringify(fieldValue) == expr.Stringify(c.value)
	case OpNotEquals:
		return !present || expr.Stringify(fieldValue) != expr.Stringify(c.value)
	case OpContains:
		return present && strings.Contains(expr.Stringify(fieldValue), expr.Stringify(c.value))
	case OpNotContains:
		return !present || !strings.Contains(expr.Stringify(fieldValue), expr.Stringify(c.value))
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		// Both sides coerce to numbers; a side that does not coerce
		// behaves like NaN and every comparison is false.
		left, lok := expr.ToNumber(fieldValue)
		right, rok := expr.ToNumber(c.value)
		if !present || !lok || !rok {
			return false
		}
		switch c.operator {
		case OpGreaterThan:
			return left > right
		case OpLessThan:
			return left < right
		case OpGreaterOrEqual:
			return left >= right
		default:
			return left <= right
		}
	default:
		return false
	}
}

// Package nodes contains the built-in node implementations: data
// transforms, filtering, outbound HTTP, integration calls and a few
// small flow utilities. Every node satisfies api.Executor and registers
// a schema describing its ports and parameters.
package nodes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/arkadian-io/flume/internal/expr"
	"github.com/arkadian-io/flume/pkg/api"
	"github.com/arkadian-io/flume/pkg/registry"
)

// Node type identifiers for the built-in set.
const (
	TypeTransform   = "data.transform"
	TypeFilter      = "data.filter"
	TypeHTTPRequest = "http.request"
	TypeIntegration = "integration.call"
	TypeDelay       = "flow.delay"
	TypeLog         = "core.log"
	TypeSetVariable = "core.setVariable"
)

// Config carries the collaborators the built-in nodes depend on.
type Config struct {
	// HTTPClient is used by http.request. Defaults to a fresh client;
	// per-request timeouts are applied via context.
	HTTPClient *http.Client

	// Resolve maps an integration id to its service caller. When nil,
	// integration.call fails at execution time for every integration.
	Resolve CallerResolver

	// Logger backs the core.log node. Defaults to slog.Default().
	Logger *slog.Logger
}

// RegisterBuiltins registers the full built-in node set into reg.
func RegisterBuiltins(reg *registry.Registry, cfg Config) error {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	registrations := []struct {
		typ    string
		exec   api.Executor
		schema api.Schema
	}{
		{TypeTransform, api.ExecutorFunc(executeTransform), transformSchema()},
		{TypeFilter, api.ExecutorFunc(executeFilter), filterSchema()},
		{TypeHTTPRequest, &httpRequestNode{client: cfg.HTTPClient}, httpRequestSchema()},
		{TypeIntegration, &integrationNode{resolve: cfg.Resolve}, integrationSchema()},
		{TypeDelay, api.ExecutorFunc(executeDelay), delaySchema()},
		{TypeLog, &logNode{logger: cfg.Logger}, logSchema()},
		{TypeSetVariable, api.ExecutorFunc(executeSetVariable), setVariableSchema()},
	}
	for _, r := range registrations {
		if err := reg.Register(r.typ, r.exec, r.schema); err != nil {
			return err
		}
	}
	return nil
}

// Parameter access helpers. Parameters arrive as map[string]any from
// JSON, so numbers are float64 and nested values are generic maps.

func paramString(params api.Values, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

func paramBool(params api.Values, key string, fallback bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

func paramDurationMS(params api.Values, key string, fallback time.Duration) time.Duration {
	if v, ok := params[key]; ok {
		if n, ok := expr.ToNumber(v); ok && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}

func paramStringMap(params api.Values, key string) map[string]string {
	out := map[string]string{}
	raw, ok := params[key]
	if !ok {
		return out
	}
	switch m := raw.(type) {
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			out[k] = expr.Stringify(v)
		}
	}
	return out
}

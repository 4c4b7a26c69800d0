// Package registry maps node type identifiers to their executable
// behavior and declared schema. The engine never invokes a node
// implementation directly; it resolves the instance's type here at
// dispatch time, so types can be added, removed or overridden at
// process scope without touching graph definitions.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arkadian-io/flume/pkg/api"
)

// EventKind classifies registry notifications.
type EventKind string

const (
	EventRegistered   EventKind = "registered"
	EventUnregistered EventKind = "unregistered"
)

// Event is sent to observers when the set of known types changes.
// Delivery is best effort: the channel is buffered and slow consumers
// drop events rather than block registration.
type Event struct {
	Kind EventKind
	Type string
	At   time.Time
}

type entry struct {
	executor api.Executor
	schema   api.Schema
}

// Registry is a process-wide dispatch table from node type identifier
// to executor and schema. It holds no per-run state.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	events  chan Event
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		events:  make(chan Event, 64),
	}
}

// Register stores executor under typ. Re-registering an existing type
// overwrites it. The schema may be zero for types without declared
// ports; the engine then treats every input as optional.
func (r *Registry) Register(typ string, executor api.Executor, schema api.Schema) error {
	if strings.TrimSpace(typ) == "" {
		return &api.ValidationError{Reason: "unknown-type", Detail: "empty node type"}
	}
	if executor == nil {
		return api.ErrInvalidExecutor
	}

	r.mu.Lock()
	r.entries[typ] = entry{executor: executor, schema: schema}
	r.mu.Unlock()

	r.emit(Event{Kind: EventRegistered, Type: typ, At: time.Now()})
	return nil
}

// Unregister removes typ. Executions referencing it afterwards fail at
// validation time, never mid-run.
func (r *Registry) Unregister(typ string) {
	r.mu.Lock()
	_, existed := r.entries[typ]
	delete(r.entries, typ)
	r.mu.Unlock()

	if existed {
		r.emit(Event{Kind: EventUnregistered, Type: typ, At: time.Now()})
	}
}

// Executor returns the executor bound to typ.
func (r *Registry) Executor(typ string) (api.Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[typ]
	if !ok {
		return nil, false
	}
	return e.executor, true
}

// Schema returns the schema registered for typ.
func (r *Registry) Schema(typ string) (api.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[typ]
	if !ok {
		return api.Schema{}, false
	}
	return e.schema, true
}

// Has reports whether typ is registered.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[typ]
	return ok
}

// Types returns a sorted snapshot of all registered type identifiers.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for typ := range r.entries {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Stats summarizes the registry for diagnostics.
type Stats struct {
	Count int      `json:"count"`
	Types []string `json:"types"`
}

// Stats returns the current count and type listing.
func (r *Registry) Stats() Stats {
	types := r.Types()
	return Stats{Count: len(types), Types: types}
}

// Search returns the registered types whose identifier, display name
// or description contains query, case-insensitively.
func (r *Registry) Search(query string) []string {
	q := strings.ToLower(query)

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for typ, e := range r.entries {
		if strings.Contains(strings.ToLower(typ), q) ||
			strings.Contains(strings.ToLower(e.schema.DisplayName), q) ||
			strings.Contains(strings.ToLower(e.schema.Description), q) {
			out = append(out, typ)
		}
	}
	sort.Strings(out)
	return out
}

// Events exposes registry change notifications. Observers such as a
// node palette consume it; execution correctness never depends on it.
func (r *Registry) Events() <-chan Event {
	return r.events
}

func (r *Registry) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		// No listener keeping up; drop rather than block.
	}
}

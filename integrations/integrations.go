// Package integrations holds the boundary to third-party services: a
// catalog of integration descriptors with per-user connection state,
// and the service callers the integration.call node delegates to.
package integrations

import (
	"context"
	"sort"
	"sync"

	"github.com/arkadian-io/flume/internal/persistence"
	"github.com/arkadian-io/flume/pkg/api"
)

// Caller is a stateless request-building wrapper around one external
// service, invoked as call(operation, parameters) -> result.
type Caller interface {
	Name() string
	Call(ctx context.Context, operation string, parameters api.Values) (api.Values, error)
}

// Descriptor is the declared metadata of one integration.
type Descriptor struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Operations  []string `json:"operations,omitempty"`
}

// Info is a descriptor merged with one user's connection state.
type Info struct {
	Descriptor
	Connected bool `json:"connected"`
}

type catalogEntry struct {
	desc   Descriptor
	caller Caller
}

// Catalog is the process-wide set of known integrations. Connection
// state is looked up per user in the credential store.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]catalogEntry
	creds   persistence.CredentialStore
}

// NewCatalog creates a catalog backed by the given credential store.
func NewCatalog(creds persistence.CredentialStore) *Catalog {
	return &Catalog{
		entries: make(map[string]catalogEntry),
		creds:   creds,
	}
}

// Register adds or replaces an integration.
func (c *Catalog) Register(desc Descriptor, caller Caller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[desc.ID] = catalogEntry{desc: desc, caller: caller}
}

// Resolve returns the caller for an integration id.
func (c *Catalog) Resolve(id string) (Caller, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || e.caller == nil {
		return nil, false
	}
	return e.caller, true
}

// Has reports whether the integration id is known.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// List returns every integration merged with the user's connection
// state, connected integrations first, then alphabetically by display
// name.
func (c *Catalog) List(userID string) ([]Info, error) {
	connected, err := c.creds.ListConnected(userID)
	if err != nil {
		return nil, err
	}
	connectedSet := make(map[string]struct{}, len(connected))
	for _, id := range connected {
		connectedSet[id] = struct{}{}
	}

	c.mu.RLock()
	out := make([]Info, 0, len(c.entries))
	for id, e := range c.entries {
		_, isConnected := connectedSet[id]
		out = append(out, Info{Descriptor: e.desc, Connected: isConnected})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Connected != out[j].Connected {
			return out[i].Connected
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out, nil
}

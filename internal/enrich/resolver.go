// Package enrich resolves contact details for qualified leads. Provider
// strategies implement Resolver and live in a registry; the orchestrator
// picks one strategy per batch, so provider names never branch inside the
// resolution path.
package enrich

import (
	"context"
	"sync"

	"github.com/sells-group/leadpipe/internal/model"
)

// Resolver fetches contact candidates for one lead from a single provider.
// Transport and provider failures are returned as errors; deciding what a
// failed lead means is the caller's job.
type Resolver interface {
	// Name returns the provider identifier used for batch selection.
	Name() string
	// Resolve returns zero or more contact candidates for the lead.
	Resolve(ctx context.Context, lead model.EnrichedLead) ([]model.ContactCandidate, error)
}

// Registry manages available enrichment providers.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

// NewRegistry creates an empty resolver registry.
func NewRegistry() *Registry {
	return &Registry{
		resolvers: make(map[string]Resolver),
	}
}

// Register adds a resolver to the registry.
func (r *Registry) Register(res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[res.Name()] = res
}

// Get returns a resolver by name, or nil if not found.
func (r *Registry) Get(name string) Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolvers[name]
}

// List returns all registered resolver names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.resolvers))
	for name := range r.resolvers {
		names = append(names, name)
	}
	return names
}

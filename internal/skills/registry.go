// Package skills resolves which capability provider and agent should carry out
// a task.
package skills

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider is a capability provider: a skill whose coverage is declared by tags.
type Provider struct {
	ID          string
	Name        string
	Description string
	Keywords    []string // Matched against task title and description tokens
	Paths       []string // doublestar globs matched against the task's paths
	Agent       string   // Agent that runs tasks resolved to this provider; empty means the default agent
	Content     string   // Skill body, handed to the agent with the task
}

// Registry lists the providers available at resolution time.
type Registry interface {
	ListProviders(ctx context.Context) ([]Provider, error)
}

// InMemoryRegistry is a Registry safe for concurrent use. Providers may be
// registered and removed while a run is in progress; each resolution sees the
// set present when it queries.
type InMemoryRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewInMemoryRegistry returns a registry holding the given providers.
func NewInMemoryRegistry(providers ...Provider) *InMemoryRegistry {
	r := &InMemoryRegistry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.ID] = p
	}
	return r
}

// Register adds or replaces a provider.
func (r *InMemoryRegistry) Register(p Provider) error {
	if p.ID == "" {
		return fmt.Errorf("provider has no id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
	return nil
}

// Deregister removes a provider. Removing an unknown id is a no-op.
func (r *InMemoryRegistry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, id)
}

// ListProviders returns the providers sorted by id.
func (r *InMemoryRegistry) ListProviders(_ context.Context) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

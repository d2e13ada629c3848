package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aixgo-dev/agentrt/agent"
)

// Registry maps agent type names to factory functions. It is append-mostly:
// types are bound at startup and only dropped together on Reset.
type Registry struct {
	factories map[agent.AgentType]agent.Factory
	mu        sync.RWMutex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[agent.AgentType]agent.Factory),
	}
}

// Register binds factory to t. It does not create an instance.
func (r *Registry) Register(t agent.AgentType, factory agent.Factory) error {
	if t == "" {
		return fmt.Errorf("%w: empty agent type", agent.ErrInvalidRegistration)
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %s", agent.ErrInvalidRegistration, t)
	}
	if err := (agent.AgentID{Type: t}).Validate(); err != nil {
		return fmt.Errorf("%w: %v", agent.ErrInvalidRegistration, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[t]; exists {
		return fmt.Errorf("%w: %s", agent.ErrDuplicateRegistration, t)
	}
	r.factories[t] = factory
	return nil
}

// Lookup returns the factory bound to t.
func (r *Registry) Lookup(t agent.AgentType) (agent.Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrUnknownAgentType, t)
	}
	return f, nil
}

// Has reports whether t is bound.
func (r *Registry) Has(t agent.AgentType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[t]
	return ok
}

// Types returns the bound type names in sorted order.
func (r *Registry) Types() []agent.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]agent.AgentType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Reset drops every binding.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[agent.AgentType]agent.Factory)
}

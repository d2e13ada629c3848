// Package instance owns the live agent instances of a runtime.
//
// Instances are created lazily, at most once per AgentID, and live until the
// store is drained on runtime close.
package instance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/internal/registry"
)

// Option configures a Store.
type Option func(*Store)

// WithBinder sets the hook run on every new instance before it is cached
// and visible to other callers.
func WithBinder(bind func(id agent.AgentID, a agent.Agent)) Option {
	return func(s *Store) {
		s.bind = bind
	}
}

// WithCreateHook sets a callback invoked after an instance is cached.
func WithCreateHook(fn func(id agent.AgentID)) Option {
	return func(s *Store) {
		s.onCreate = fn
	}
}

// Store caches one agent instance per AgentID.
type Store struct {
	registry  *registry.Registry
	instances map[agent.AgentID]agent.Agent
	group     singleflight.Group
	mu        sync.RWMutex
	closed    bool

	bind     func(agent.AgentID, agent.Agent)
	onCreate func(agent.AgentID)
}

// New creates a store resolving factories through reg.
func New(reg *registry.Registry, opts ...Option) *Store {
	s := &Store{
		registry:  reg,
		instances: make(map[agent.AgentID]agent.Agent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached instance for id without creating it.
func (s *Store) Get(id agent.AgentID) (agent.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.instances[id]
	return a, ok
}

// GetOrCreate returns the instance for id, invoking the registered factory
// the first time id is requested. Concurrent first requests share a single
// factory call. A failed creation is not cached.
func (s *Store) GetOrCreate(ctx context.Context, id agent.AgentID) (agent.Agent, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if a, ok := s.Get(id); ok {
		return a, nil
	}

	v, err, _ := s.group.Do(id.String(), func() (any, error) {
		// A flight for id may have finished between Get and Do.
		if a, ok := s.Get(id); ok {
			return a, nil
		}
		return s.create(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(agent.Agent), nil
}

func (s *Store) create(ctx context.Context, id agent.AgentID) (a agent.Agent, err error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, agent.ErrRuntimeClosed
	}

	factory, err := s.registry.Lookup(id.Type)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("create agent %s: factory panic: %v", id, r)
		}
	}()

	// The instance is shared by every later sender, so one caller's
	// cancellation must not abort it. Factories never suspend.
	fctx := agent.ContextWithYielder(context.WithoutCancel(ctx), nil)
	a, err = factory(fctx)
	if err != nil {
		return nil, fmt.Errorf("create agent %s: %w", id, err)
	}
	if a == nil {
		return nil, fmt.Errorf("create agent %s: factory returned nil", id)
	}
	if s.bind != nil {
		s.bind(id, a)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, agent.ErrRuntimeClosed
	}
	s.instances[id] = a
	s.mu.Unlock()

	if s.onCreate != nil {
		s.onCreate(id)
	}
	return a, nil
}

// IDs returns the ids of all live instances, sorted.
func (s *Store) IDs() []agent.AgentID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]agent.AgentID, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Len returns the number of live instances.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

// Drain closes the store and hands back every instance it held. Later
// creations fail with agent.ErrRuntimeClosed.
func (s *Store) Drain() map[agent.AgentID]agent.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.instances
	s.instances = make(map[agent.AgentID]agent.Agent)
	s.closed = true
	return drained
}

// Package agents provides the built-in agent kinds that configuration files
// can bind to agent types.
package agents

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aixgo-dev/agentrt/agent"
)

// Env carries the dependencies a builder may hand to the agents it builds.
type Env struct {
	Logger *slog.Logger
}

// Builder returns the factory for one agent kind.
type Builder func(env Env) agent.Factory

var catalog = struct {
	mu       sync.RWMutex
	builders map[string]Builder
}{builders: make(map[string]Builder)}

// Register adds a kind to the catalog. Kinds register themselves from init;
// registering a kind twice panics.
func Register(kind string, b Builder) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	if _, dup := catalog.builders[kind]; dup {
		panic(fmt.Sprintf("agents: kind %q registered twice", kind))
	}
	catalog.builders[kind] = b
}

// Factory returns the factory for kind.
func Factory(kind string, env Env) (agent.Factory, error) {
	catalog.mu.RLock()
	b, ok := catalog.builders[kind]
	catalog.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent kind: %s", kind)
	}
	if env.Logger == nil {
		env.Logger = slog.New(slog.DiscardHandler)
	}
	return b(env), nil
}

// Kinds lists the registered kinds, sorted.
func Kinds() []string {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	kinds := make([]string, 0, len(catalog.builders))
	for k := range catalog.builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

package agents

import (
	"sync"

	"github.com/aixgo-dev/agentrt/agent"
)

// Base records the identity and runtime handed to an agent by Bind.
// Embed it to satisfy agent.Binder.
type Base struct {
	mu sync.RWMutex
	id agent.AgentID
	rt agent.Runtime
}

// Bind implements agent.Binder.
func (b *Base) Bind(id agent.AgentID, rt agent.Runtime) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = id
	b.rt = rt
}

// ID returns the bound agent id.
func (b *Base) ID() agent.AgentID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

// Runtime returns the bound runtime, nil before Bind.
func (b *Base) Runtime() agent.Runtime {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rt
}

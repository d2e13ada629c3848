// Package subscription resolves published topics to recipient agents.
package subscription

import (
	"fmt"
	"sync"

	"github.com/aixgo-dev/agentrt/agent"
)

// Manager holds the subscriptions of one runtime in registration order.
type Manager struct {
	subs []agent.Subscription
	mu   sync.RWMutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add registers sub. Subscription ids must be unique.
func (m *Manager) Add(sub agent.Subscription) error {
	if sub == nil || sub.ID() == "" {
		return fmt.Errorf("invalid subscription")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subs {
		if s.ID() == sub.ID() {
			return fmt.Errorf("%w: %s", agent.ErrSubscriptionExists, sub.ID())
		}
	}
	m.subs = append(m.subs, sub)
	return nil
}

// Remove drops the subscription with the given id.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.subs {
		if s.ID() == id {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", agent.ErrSubscriptionNotFound, id)
}

// Recipients returns the agents subscribed to topic, deduplicated, in the
// order their subscriptions were added.
func (m *Manager) Recipients(topic agent.TopicID) ([]agent.AgentID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		out  []agent.AgentID
		seen = make(map[agent.AgentID]struct{})
	)
	for _, s := range m.subs {
		if !s.Matches(topic) {
			continue
		}
		id, err := s.MapToAgent(topic)
		if err != nil {
			return nil, fmt.Errorf("subscription %s: %w", s.ID(), err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// List returns a snapshot of all subscriptions.
func (m *Manager) List() []agent.Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]agent.Subscription(nil), m.subs...)
}

// Reset drops every subscription.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = nil
}

package agent

import (
	"fmt"
	"strings"
)

// DefaultKey is the instance key used when an AgentID is parsed without one.
const DefaultKey = "default"

// AgentType names a category of agent. It is bound to a factory at
// registration time and is unique within a runtime.
type AgentType string

// String returns the type name.
func (t AgentType) String() string { return string(t) }

// AgentID addresses exactly one agent instance. It is a plain lookup key and
// is comparable, so it can be used directly as a map key.
type AgentID struct {
	Type AgentType
	Key  string
}

// NewAgentID returns the id for the instance key of the given type.
func NewAgentID(t AgentType, key string) AgentID {
	return AgentID{Type: t, Key: key}
}

// String renders the id as "type/key".
func (id AgentID) String() string {
	return string(id.Type) + "/" + id.Key
}

// Validate reports whether the id can address an agent.
func (id AgentID) Validate() error {
	if id.Type == "" {
		return fmt.Errorf("%w: empty agent type", ErrInvalidAgentID)
	}
	if strings.Contains(string(id.Type), "/") {
		return fmt.Errorf("%w: agent type %q contains '/'", ErrInvalidAgentID, id.Type)
	}
	return nil
}

// ParseAgentID parses "type/key". A missing key resolves to DefaultKey.
func ParseAgentID(s string) (AgentID, error) {
	typ, key, found := strings.Cut(s, "/")
	if !found || key == "" {
		key = DefaultKey
	}
	id := AgentID{Type: AgentType(typ), Key: key}
	if err := id.Validate(); err != nil {
		return AgentID{}, err
	}
	return id, nil
}

// TopicID addresses a publish destination. Type selects subscribers, Source
// scopes the topic (for type subscriptions it becomes the recipient key).
type TopicID struct {
	Type   string
	Source string
}

// String renders the topic as "type/source".
func (t TopicID) String() string {
	return t.Type + "/" + t.Source
}

// ParseTopicID parses "type/source". A missing source resolves to DefaultKey.
func ParseTopicID(s string) (TopicID, error) {
	typ, source, found := strings.Cut(s, "/")
	if typ == "" {
		return TopicID{}, fmt.Errorf("invalid topic %q: empty type", s)
	}
	if !found || source == "" {
		source = DefaultKey
	}
	return TopicID{Type: typ, Source: source}, nil
}

// Metadata describes an agent instance. It is read-only outside the runtime.
type Metadata struct {
	Type        AgentType `json:"type"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
}

// MetadataOf builds the metadata for an instance living at id.
func MetadataOf(id AgentID, a Agent) Metadata {
	md := Metadata{Type: id.Type, Key: id.Key}
	if d, ok := a.(Describer); ok {
		md.Description = d.Description()
	}
	return md
}

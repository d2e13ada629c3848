package agent

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Subscription decides which agent receives a message published to a topic.
type Subscription interface {
	// ID uniquely identifies the subscription within a runtime.
	ID() string

	// Matches reports whether the subscription applies to topic.
	Matches(topic TopicID) bool

	// MapToAgent returns the recipient for a matching topic.
	MapToAgent(topic TopicID) (AgentID, error)
}

// TypeSubscription routes topics of TopicType to the AgentType instance
// whose key equals the topic source.
type TypeSubscription struct {
	id        string
	TopicType string
	AgentType AgentType
}

// NewTypeSubscription returns a TypeSubscription with a generated id.
func NewTypeSubscription(topicType string, agentType AgentType) *TypeSubscription {
	return &TypeSubscription{id: uuid.NewString(), TopicType: topicType, AgentType: agentType}
}

func (s *TypeSubscription) ID() string { return s.id }

func (s *TypeSubscription) Matches(topic TopicID) bool {
	return topic.Type == s.TopicType
}

func (s *TypeSubscription) MapToAgent(topic TopicID) (AgentID, error) {
	if !s.Matches(topic) {
		return AgentID{}, fmt.Errorf("topic %s does not match subscription %s", topic, s.id)
	}
	return AgentID{Type: s.AgentType, Key: topic.Source}, nil
}

// TypePrefixSubscription is a TypeSubscription matching every topic type
// that starts with TopicTypePrefix.
type TypePrefixSubscription struct {
	id              string
	TopicTypePrefix string
	AgentType       AgentType
}

// NewTypePrefixSubscription returns a TypePrefixSubscription with a generated id.
func NewTypePrefixSubscription(prefix string, agentType AgentType) *TypePrefixSubscription {
	return &TypePrefixSubscription{id: uuid.NewString(), TopicTypePrefix: prefix, AgentType: agentType}
}

func (s *TypePrefixSubscription) ID() string { return s.id }

func (s *TypePrefixSubscription) Matches(topic TopicID) bool {
	return strings.HasPrefix(topic.Type, s.TopicTypePrefix)
}

func (s *TypePrefixSubscription) MapToAgent(topic TopicID) (AgentID, error) {
	if !s.Matches(topic) {
		return AgentID{}, fmt.Errorf("topic %s does not match subscription %s", topic, s.id)
	}
	return AgentID{Type: s.AgentType, Key: topic.Source}, nil
}

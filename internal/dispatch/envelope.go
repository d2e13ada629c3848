package dispatch

import (
	"context"
	"time"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/pkg/observability"
)

// Envelope is one pending delivery.
type Envelope struct {
	ID        string
	Payload   any
	Recipient agent.AgentID
	Sender    *agent.AgentID
	Topic     *agent.TopicID

	// Context is the sender's cancellation token. It becomes the handler's
	// context once the envelope is dequeued.
	Context context.Context

	// Future receives the handler result. Nil for published messages.
	Future *agent.Future

	EnqueuedAt time.Time
}

// Kind reports whether the envelope came from a send or a publish.
func (e *Envelope) Kind() string {
	if e.Topic != nil {
		return observability.KindPublish
	}
	return observability.KindSend
}

// MessageContext builds the handler-facing metadata for the envelope.
func (e *Envelope) MessageContext() agent.MessageContext {
	return agent.MessageContext{
		MessageID: e.ID,
		Recipient: e.Recipient,
		Sender:    e.Sender,
		Topic:     e.Topic,
		IsRPC:     e.Future != nil,
	}
}

// queue is an unbounded FIFO of envelopes.
type queue struct {
	items []*Envelope
	head  int
}

func (q *queue) push(envs ...*Envelope) {
	q.items = append(q.items, envs...)
}

func (q *queue) pop() (*Envelope, bool) {
	if q.head == len(q.items) {
		return nil, false
	}
	env := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > 64 && q.head*2 > len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return env, true
}

func (q *queue) len() int {
	return len(q.items) - q.head
}

func (q *queue) drain() []*Envelope {
	out := append([]*Envelope(nil), q.items[q.head:]...)
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	return out
}

package agent

import "context"

// Agent is the interface that all agents must implement.
// External packages implement it for custom agents and hand the runtime a
// Factory; the runtime alone constructs and owns instances.
//
// Handlers must return the same table for every call. Tables are normally
// built once per agent type (package-level var or constructor) and shared.
type Agent interface {
	// Handlers returns the capability table used to route payloads.
	Handlers() *Table
}

// Describer is implemented by agents that expose a human readable
// description through Metadata.
type Describer interface {
	Description() string
}

// Binder is implemented by agents that need their own identity or want to
// send and publish messages. Bind is called once, right after the factory
// returns and before the first delivery. The Runtime passed in stamps the
// agent's id as sender on everything it sends.
type Binder interface {
	Bind(id AgentID, rt Runtime)
}

// Closer is implemented by agents holding resources. Close is called when
// the owning runtime closes. The runtime does not wait for in-flight
// handlers first, so Close may run while one of the agent's handlers is
// suspended or still executing; state shared between Close and handlers
// must be synchronised by the agent.
type Closer interface {
	Close(ctx context.Context) error
}

// Factory constructs a fresh agent instance. It is invoked at most once per
// AgentID. The context is not cancelled by individual senders; factories
// must not suspend.
type Factory func(ctx context.Context) (Agent, error)

// Runtime is the send/publish contract visible to agents. Local and any
// future remote runtimes implement the same surface.
type Runtime interface {
	// SendMessage queues payload for recipient and returns a handle for the
	// handler's result. It never waits for delivery.
	SendMessage(ctx context.Context, payload any, recipient AgentID, opts ...SendOption) (*Future, error)

	// Publish broadcasts payload to every subscriber of topic. Delivery
	// failures are isolated per subscriber and are not returned.
	Publish(ctx context.Context, payload any, topic TopicID, opts ...SendOption) error
}

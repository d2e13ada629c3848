package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRegistration is returned when an agent type is registered twice.
	ErrDuplicateRegistration = errors.New("agent type already registered")

	// ErrInvalidRegistration is returned for an empty type name or nil factory.
	ErrInvalidRegistration = errors.New("invalid agent registration")

	// ErrUnknownAgentType is returned when no factory is bound to a type.
	ErrUnknownAgentType = errors.New("unknown agent type")

	// ErrUnhandledMessageType is returned when an agent has no handler for a payload.
	ErrUnhandledMessageType = errors.New("unhandled message type")

	// ErrRuntimeClosed is returned by any call made after the runtime closed.
	ErrRuntimeClosed = errors.New("runtime closed")

	// ErrRuntimeNotRunning is returned by StopWhenIdle when queued messages
	// can never drain because the runtime is stopped.
	ErrRuntimeNotRunning = errors.New("runtime not running")

	// ErrMessageDropped is returned when an intervention discards a message.
	ErrMessageDropped = errors.New("message dropped")

	// ErrInvalidAgentID is returned for ids that cannot address an agent.
	ErrInvalidAgentID = errors.New("invalid agent id")

	// ErrSubscriptionExists is returned when a subscription id is reused.
	ErrSubscriptionExists = errors.New("subscription already exists")

	// ErrSubscriptionNotFound is returned when removing an unknown subscription.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// HandlerError wraps a failure raised by a message handler, including
// recovered panics.
type HandlerError struct {
	Recipient AgentID
	MessageID string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed on message %s: %v", e.Recipient, e.MessageID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

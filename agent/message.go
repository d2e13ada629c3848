package agent

// MessageContext carries delivery metadata into a handler. Cancellation
// travels separately as the handler's context.Context.
type MessageContext struct {
	// MessageID uniquely identifies the envelope.
	MessageID string

	// Recipient is the id of the agent handling the message.
	Recipient AgentID

	// Sender is the originating agent, nil when sent from outside any agent.
	Sender *AgentID

	// Topic is set for published messages.
	Topic *TopicID

	// IsRPC reports whether a caller is waiting for the handler's result.
	IsRPC bool
}

// SendOptions holds per-message settings collected from SendOption values.
type SendOptions struct {
	Sender    *AgentID
	MessageID string
}

// SendOption configures a single send or publish.
type SendOption func(*SendOptions)

// WithSender stamps the message with the sending agent's id.
func WithSender(id AgentID) SendOption {
	return func(o *SendOptions) {
		o.Sender = &id
	}
}

// WithMessageID overrides the generated message id.
func WithMessageID(id string) SendOption {
	return func(o *SendOptions) {
		o.MessageID = id
	}
}

// ApplySendOptions folds opts into a SendOptions value.
func ApplySendOptions(opts ...SendOption) SendOptions {
	var o SendOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Package agent defines the contract between agents and the agentrt runtime.
//
// An agent is a stateful value created by the runtime through a registered
// Factory. Callers never hold agents directly; they address them by AgentID,
// a (type, key) pair, and the runtime instantiates each id lazily on the
// first message sent to it.
//
// # Handler tables
//
// Every agent exposes a Table mapping payload types to handlers. Tables are
// built once per agent type:
//
//	var echoHandlers = agent.Handle(agent.NewTable(),
//	    func(ctx context.Context, msg string, mctx agent.MessageContext) (any, error) {
//	        return msg, nil
//	    })
//
//	type Echo struct{}
//
//	func (Echo) Handlers() *agent.Table { return echoHandlers }
//
// A single entry may accept a closed set of types with HandleUnion:
//
//	agent.HandleUnion(t, handleShape, agent.TypeOf[Circle](), agent.TypeOf[Square]())
//
// # Suspension
//
// Handlers run one at a time. A handler gives up its slot only at explicit
// suspension points: awaiting a Future, or calling Suspend around any other
// blocking wait. Shared agent state must not assume atomicity across those
// points.
//
// # Cancellation
//
// The context passed to SendMessage is the message's cancellation token and
// becomes the handler's context. Cancellation is advisory: handlers must
// check ctx themselves.
package agent

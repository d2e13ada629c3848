package agents

import (
	"context"
	"fmt"

	"github.com/aixgo-dev/agentrt/agent"
)

// Echo replies with the text it receives.
type Echo struct{}

var echoHandlers = agent.HandleUnion(
	agent.Handle(agent.NewTable(), func(_ context.Context, s string, _ agent.MessageContext) (any, error) {
		return s, nil
	}),
	func(_ context.Context, payload any, _ agent.MessageContext) (any, error) {
		if b, ok := payload.([]byte); ok {
			return string(b), nil
		}
		return payload.(fmt.Stringer).String(), nil
	},
	agent.TypeOf[[]byte](),
	agent.TypeOf[fmt.Stringer](),
)

func init() {
	Register("echo", func(Env) agent.Factory {
		return func(context.Context) (agent.Agent, error) {
			return &Echo{}, nil
		}
	})
}

func (*Echo) Handlers() *agent.Table { return echoHandlers }
func (*Echo) Description() string    { return "Replies with the text it receives" }

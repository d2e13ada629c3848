package agentrt

import (
	"context"

	"github.com/aixgo-dev/agentrt/agent"
)

// InterventionHandler observes and rewrites traffic at the runtime edge.
// OnSend and OnPublish run before a message is queued; returning
// agent.ErrMessageDropped discards it. OnResponse runs on a successful RPC
// result before the caller sees it.
type InterventionHandler interface {
	OnSend(ctx context.Context, payload any, mctx agent.MessageContext) (any, error)
	OnPublish(ctx context.Context, payload any, mctx agent.MessageContext) (any, error)
	OnResponse(ctx context.Context, value any, mctx agent.MessageContext) (any, error)
}

// DefaultInterventionHandler passes everything through. Embed it to
// override a single hook.
type DefaultInterventionHandler struct{}

func (DefaultInterventionHandler) OnSend(_ context.Context, payload any, _ agent.MessageContext) (any, error) {
	return payload, nil
}

func (DefaultInterventionHandler) OnPublish(_ context.Context, payload any, _ agent.MessageContext) (any, error) {
	return payload, nil
}

func (DefaultInterventionHandler) OnResponse(_ context.Context, value any, _ agent.MessageContext) (any, error) {
	return value, nil
}

type interventionHook func(h InterventionHandler, ctx context.Context, v any, mctx agent.MessageContext) (any, error)

func runInterventions(hs []InterventionHandler, hook interventionHook, ctx context.Context, v any, mctx agent.MessageContext) (any, error) {
	var err error
	for _, h := range hs {
		v, err = hook(h, ctx, v, mctx)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

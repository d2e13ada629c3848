package agentrt

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/internal/dispatch"
	"github.com/aixgo-dev/agentrt/internal/observability"
)

// ErrUnexpectedResponse is returned by Call when the handler result does not
// have the requested type.
var ErrUnexpectedResponse = errors.New("unexpected response type")

// SendMessage queues payload for recipient and returns a handle resolving
// with the handler's result. It does not wait for delivery. Only a closed
// runtime or an invalid recipient fail immediately; every other failure,
// including an unknown agent type, arrives through the handle.
//
// ctx is the cancellation token: if it is done when the message is dequeued
// the handler is skipped and the handle resolves with ctx.Err(). Otherwise
// the handler receives ctx and decides itself whether to honour it.
func (r *Runtime) SendMessage(ctx context.Context, payload any, recipient agent.AgentID, opts ...agent.SendOption) (*agent.Future, error) {
	if r.isClosed() {
		return nil, agent.ErrRuntimeClosed
	}
	if err := recipient.Validate(); err != nil {
		return nil, err
	}

	o := agent.ApplySendOptions(opts...)
	env := &dispatch.Envelope{
		ID:        messageID(o),
		Recipient: recipient,
		Sender:    o.Sender,
		Context:   ctx,
		Future:    agent.NewFuture(),
	}

	payload, err := runInterventions(r.config.Interventions, InterventionHandler.OnSend, ctx, payload, env.MessageContext())
	if err != nil {
		if errDropped(err) {
			r.config.Metrics.RecordDropped("intervention")
			r.logger.Debug("message dropped", "message_id", env.ID, "recipient", recipient.String())
		}
		env.Future.Resolve(nil, err)
		return env.Future, nil
	}
	env.Payload = payload

	if err := r.scheduler.Enqueue(env); err != nil {
		return nil, err
	}
	return env.Future, nil
}

// Publish queues payload for every agent subscribed to topic, except the
// sender. Recipients are fixed when Publish is called. Delivery failures are
// logged, counted and passed to the delivery error handler; they never reach
// the publisher. Only a closed runtime is reported.
//
// ctx carries values such as the trace span to the subscribers, but its
// cancellation does not reach them: a published message is delivered even
// if ctx ends first.
func (r *Runtime) Publish(ctx context.Context, payload any, topic agent.TopicID, opts ...agent.SendOption) error {
	if r.isClosed() {
		return agent.ErrRuntimeClosed
	}

	o := agent.ApplySendOptions(opts...)
	id := messageID(o)
	mctx := agent.MessageContext{MessageID: id, Sender: o.Sender, Topic: &topic}

	payload, err := runInterventions(r.config.Interventions, InterventionHandler.OnPublish, ctx, payload, mctx)
	if err != nil {
		if errDropped(err) {
			r.config.Metrics.RecordDropped("intervention")
		}
		r.logger.Debug("publish discarded", "message_id", id, "topic", topic.String(), "error", err)
		return nil
	}

	recipients, err := r.subscriptions.Recipients(topic)
	if err != nil {
		r.config.Metrics.RecordDropped("unroutable")
		r.reportDeliveryError(mctx, err)
		return nil
	}

	deliverCtx := context.WithoutCancel(ctx)
	envs := make([]*dispatch.Envelope, 0, len(recipients))
	for _, rcpt := range recipients {
		if o.Sender != nil && *o.Sender == rcpt {
			continue
		}
		envs = append(envs, &dispatch.Envelope{
			ID:        id,
			Payload:   payload,
			Recipient: rcpt,
			Sender:    o.Sender,
			Topic:     &topic,
			Context:   deliverCtx,
		})
	}
	if len(envs) == 0 {
		r.config.Metrics.RecordDropped("no_subscribers")
		r.logger.Debug("publish has no recipients", "topic", topic.String())
		return nil
	}
	return r.scheduler.Enqueue(envs...)
}

// Call sends payload to recipient and waits for a result of type T. Inside a
// handler the wait suspends, so other messages keep flowing.
func Call[T any](ctx context.Context, rt agent.Runtime, payload any, recipient agent.AgentID, opts ...agent.SendOption) (T, error) {
	var zero T
	f, err := rt.SendMessage(ctx, payload, recipient, opts...)
	if err != nil {
		return zero, err
	}
	v, err := f.Await(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedResponse, v, zero)
	}
	return out, nil
}

func messageID(o agent.SendOptions) string {
	if o.MessageID != "" {
		return o.MessageID
	}
	return uuid.NewString()
}

// deliver runs on the scheduler with the execution slot held.
func (r *Runtime) deliver(ctx context.Context, env *dispatch.Envelope) (value any, err error) {
	if r.config.Tracing {
		var span trace.Span
		ctx, span = observability.StartSpan(ctx, "agentrt.deliver",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				observability.AttrAgentType.String(string(env.Recipient.Type)),
				observability.AttrAgentKey.String(env.Recipient.Key),
				observability.AttrMessageID.String(env.ID),
				observability.AttrKind.String(env.Kind()),
				observability.AttrPayload.String(fmt.Sprintf("%T", env.Payload)),
			),
		)
		if env.Topic != nil {
			span.SetAttributes(observability.AttrTopic.String(env.Topic.String()))
		}
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}

	mctx := env.MessageContext()
	value, err = r.invoke(ctx, env, mctx)
	if err == nil && env.Future != nil && len(r.config.Interventions) > 0 {
		value, err = runInterventions(r.config.Interventions, InterventionHandler.OnResponse, ctx, value, mctx)
	}
	if err != nil && env.Future == nil {
		r.reportDeliveryError(mctx, err)
	}
	return value, err
}

func (r *Runtime) invoke(ctx context.Context, env *dispatch.Envelope, mctx agent.MessageContext) (value any, err error) {
	a, err := r.instances.GetOrCreate(ctx, env.Recipient)
	if err != nil {
		return nil, err
	}
	h, err := a.Handlers().Resolve(env.Payload)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			value, err = nil, &agent.HandlerError{
				Recipient: env.Recipient,
				MessageID: env.ID,
				Err:       fmt.Errorf("panic: %v", p),
			}
		}
	}()

	value, err = h(ctx, env.Payload, mctx)
	if err != nil {
		return nil, &agent.HandlerError{Recipient: env.Recipient, MessageID: env.ID, Err: err}
	}
	return value, nil
}

func (r *Runtime) reportDeliveryError(mctx agent.MessageContext, err error) {
	r.logger.Warn("publish delivery failed",
		"message_id", mctx.MessageID,
		"recipient", mctx.Recipient.String(),
		"error", err,
	)
	if r.config.OnDeliveryError != nil {
		r.config.OnDeliveryError(mctx, err)
	}
}

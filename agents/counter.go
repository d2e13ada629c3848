package agents

import (
	"context"
	"log/slog"
	"time"

	"github.com/aixgo-dev/agentrt/agent"
)

// CounterChangedTopic is the topic type a Counter publishes to after every
// change. The topic source is the counter's key.
const CounterChangedTopic = "counter.changed"

// Increment adds By to a counter. A zero By counts as one.
type Increment struct {
	By int64 `json:"by"`
}

// Get asks a counter for its total.
type Get struct{}

// Reset sets a counter back to zero.
type Reset struct{}

// Tick is published by scheduled jobs. A Counter counts ticks.
type Tick struct {
	Job string    `json:"job"`
	At  time.Time `json:"at"`
}

// CounterChanged announces a counter's new total.
type CounterChanged struct {
	Counter agent.AgentID `json:"counter"`
	Total   int64         `json:"total"`
}

// Counter keeps a running total per instance. Every handler replies with
// the total after the message was applied.
type Counter struct {
	Base
	logger *slog.Logger
	total  int64
	table  *agent.Table
}

func init() {
	Register("counter", func(env Env) agent.Factory {
		return func(context.Context) (agent.Agent, error) {
			return NewCounter(env.Logger), nil
		}
	})
}

// NewCounter creates a counter at zero.
func NewCounter(logger *slog.Logger) *Counter {
	c := &Counter{logger: logger}
	t := agent.NewTable()
	agent.Handle(t, func(ctx context.Context, m Increment, _ agent.MessageContext) (any, error) {
		by := m.By
		if by == 0 {
			by = 1
		}
		return c.add(ctx, by), nil
	})
	agent.Handle(t, func(ctx context.Context, m Tick, _ agent.MessageContext) (any, error) {
		return c.add(ctx, 1), nil
	})
	agent.Handle(t, func(ctx context.Context, _ Reset, _ agent.MessageContext) (any, error) {
		return c.add(ctx, -c.total), nil
	})
	agent.Handle(t, func(context.Context, Get, agent.MessageContext) (any, error) {
		return c.total, nil
	})
	c.table = t
	return c
}

func (c *Counter) Handlers() *agent.Table { return c.table }
func (c *Counter) Description() string    { return "Counts increments and scheduler ticks" }

// Handlers never run in parallel, so total needs no lock.
func (c *Counter) add(ctx context.Context, by int64) int64 {
	c.total += by
	if by == 0 {
		return c.total
	}

	rt := c.Runtime()
	if rt == nil {
		return c.total
	}
	id := c.ID()
	topic := agent.TopicID{Type: CounterChangedTopic, Source: id.Key}
	if err := rt.Publish(ctx, CounterChanged{Counter: id, Total: c.total}, topic); err != nil {
		c.logger.Warn("counter publish failed", "counter", id.String(), "error", err)
	}
	return c.total
}

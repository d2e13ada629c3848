package agentrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/internal/dispatch"
	"github.com/aixgo-dev/agentrt/internal/instance"
	"github.com/aixgo-dev/agentrt/internal/registry"
	"github.com/aixgo-dev/agentrt/internal/subscription"
)

// State is the lifecycle state of a Runtime.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats is a point-in-time snapshot of a Runtime.
type Stats struct {
	State     State             `json:"state"`
	Queued    int               `json:"queued"`
	InFlight  int               `json:"in_flight"`
	Instances int               `json:"instances"`
	Types     []agent.AgentType `json:"types"`
}

// Runtime is an in-process agent runtime. It owns the factory registry, the
// live instances, and the dispatch queue. The zero value is not usable;
// create one with New.
type Runtime struct {
	config *RuntimeConfig
	logger *slog.Logger

	registry      *registry.Registry
	instances     *instance.Store
	subscriptions *subscription.Manager
	scheduler     *dispatch.Scheduler

	mu     sync.RWMutex
	closed bool
}

var _ agent.Runtime = (*Runtime)(nil)

// New creates a stopped runtime. Messages can be queued before Start.
func New(opts ...Option) *Runtime {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	r := &Runtime{
		config:        cfg,
		logger:        cfg.Logger.With("component", "agentrt"),
		registry:      registry.New(),
		subscriptions: subscription.NewManager(),
	}

	r.instances = instance.New(r.registry,
		instance.WithBinder(r.bind),
		instance.WithCreateHook(func(id agent.AgentID) {
			cfg.Metrics.RecordInstanceCreated(string(id.Type))
			r.logger.Debug("agent created", "agent", id.String())
		}),
	)

	schedOpts := []dispatch.Option{
		dispatch.WithMetrics(cfg.Metrics),
		dispatch.WithLogger(r.logger),
		dispatch.WithSkipHook(func(env *dispatch.Envelope, err error) {
			r.reportDeliveryError(env.MessageContext(), err)
		}),
	}
	if cfg.DispatchRate > 0 {
		schedOpts = append(schedOpts, dispatch.WithRateLimit(rate.NewLimiter(cfg.DispatchRate, cfg.DispatchBurst)))
	}
	r.scheduler = dispatch.NewScheduler(r.deliver, schedOpts...)
	return r
}

// Register binds typeName to factory. The factory is not invoked until the
// first message addressed to an agent of that type is delivered.
func (r *Runtime) Register(typeName string, factory agent.Factory) (agent.AgentType, error) {
	if r.isClosed() {
		return "", agent.ErrRuntimeClosed
	}
	t := agent.AgentType(typeName)
	if err := r.registry.Register(t, factory); err != nil {
		return "", err
	}
	r.logger.Info("agent type registered", "type", typeName)
	return t, nil
}

// RegisteredTypes returns every bound agent type, sorted.
func (r *Runtime) RegisteredTypes() []agent.AgentType {
	return r.registry.Types()
}

// AddSubscription routes matching published topics to an agent type.
func (r *Runtime) AddSubscription(sub agent.Subscription) error {
	if r.isClosed() {
		return agent.ErrRuntimeClosed
	}
	return r.subscriptions.Add(sub)
}

// RemoveSubscription removes the subscription with the given id.
func (r *Runtime) RemoveSubscription(id string) error {
	if r.isClosed() {
		return agent.ErrRuntimeClosed
	}
	return r.subscriptions.Remove(id)
}

// Subscriptions returns the active subscriptions in registration order.
func (r *Runtime) Subscriptions() []agent.Subscription {
	return r.subscriptions.List()
}

// Start begins processing queued messages. It is a no-op when running.
func (r *Runtime) Start() error {
	if err := r.scheduler.Start(); err != nil {
		return err
	}
	r.logger.Info("runtime started")
	return nil
}

// Stop halts dequeuing and returns without waiting. Handlers already in
// flight run to completion; queued messages wait for the next Start.
func (r *Runtime) Stop() {
	r.scheduler.Stop()
	r.logger.Info("runtime stopped")
}

// StopWhenIdle blocks until the queue is empty and no handler is in flight,
// then stops. It returns ctx.Err() if ctx ends first, and
// agent.ErrRuntimeNotRunning if the runtime is stopped with work queued,
// including work queued by a handler that finishes after the call began.
func (r *Runtime) StopWhenIdle(ctx context.Context) error {
	if err := r.scheduler.StopWhenIdle(ctx); err != nil {
		return err
	}
	r.logger.Info("runtime stopped when idle")
	return nil
}

// Close stops the runtime for good. Queued sends fail with
// agent.ErrRuntimeClosed, instances implementing agent.Closer are closed
// concurrently, and all registrations are dropped. Handlers in flight are
// not waited for. Closing twice returns nil.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	pending := r.scheduler.Close()
	for _, env := range pending {
		if env.Future != nil {
			env.Future.Resolve(nil, agent.ErrRuntimeClosed)
		}
	}
	if len(pending) > 0 {
		r.logger.Warn("discarded queued messages on close", "count", len(pending))
	}

	instances := r.instances.Drain()
	var g errgroup.Group
	for id, a := range instances {
		c, ok := a.(agent.Closer)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := c.Close(ctx); err != nil {
				return fmt.Errorf("close agent %s: %w", id, err)
			}
			return nil
		})
	}
	err := g.Wait()

	r.registry.Reset()
	r.subscriptions.Reset()
	r.logger.Info("runtime closed", "instances", len(instances))
	return err
}

// State reports the lifecycle state.
func (r *Runtime) State() State {
	switch {
	case r.scheduler.Closed():
		return StateClosed
	case r.scheduler.Running():
		return StateRunning
	default:
		return StateStopped
	}
}

// Idle reports whether nothing is queued or in flight.
func (r *Runtime) Idle() bool {
	return r.scheduler.Idle()
}

// Stats returns a snapshot of queue, handler and instance counts.
func (r *Runtime) Stats() Stats {
	return Stats{
		State:     r.State(),
		Queued:    r.scheduler.Len(),
		InFlight:  r.scheduler.InFlight(),
		Instances: r.instances.Len(),
		Types:     r.registry.Types(),
	}
}

// AgentMetadata describes the agent addressed by id, creating it if it does
// not exist yet.
func (r *Runtime) AgentMetadata(ctx context.Context, id agent.AgentID) (agent.Metadata, error) {
	if r.isClosed() {
		return agent.Metadata{}, agent.ErrRuntimeClosed
	}
	a, err := r.instances.GetOrCreate(ctx, id)
	if err != nil {
		return agent.Metadata{}, err
	}
	return agent.MetadataOf(id, a), nil
}

// Agents returns the ids of all live instances, sorted.
func (r *Runtime) Agents() []agent.AgentID {
	return r.instances.IDs()
}

// Ping fails once the runtime is closed. It backs the runtime health check.
func (r *Runtime) Ping(context.Context) error {
	if r.isClosed() {
		return agent.ErrRuntimeClosed
	}
	return nil
}

func (r *Runtime) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// bind hands a new instance its identity and a sender-stamping runtime.
func (r *Runtime) bind(id agent.AgentID, a agent.Agent) {
	if b, ok := a.(agent.Binder); ok {
		b.Bind(id, &boundRuntime{rt: r, self: id})
	}
}

// boundRuntime is the agent.Runtime handed to agents. Everything it sends
// carries the agent's id as sender.
type boundRuntime struct {
	rt   *Runtime
	self agent.AgentID
}

func (b *boundRuntime) SendMessage(ctx context.Context, payload any, recipient agent.AgentID, opts ...agent.SendOption) (*agent.Future, error) {
	return b.rt.SendMessage(ctx, payload, recipient, b.stamp(opts)...)
}

func (b *boundRuntime) Publish(ctx context.Context, payload any, topic agent.TopicID, opts ...agent.SendOption) error {
	return b.rt.Publish(ctx, payload, topic, b.stamp(opts)...)
}

func (b *boundRuntime) stamp(opts []agent.SendOption) []agent.SendOption {
	return append([]agent.SendOption{agent.WithSender(b.self)}, opts...)
}

// errDropped reports whether an intervention discarded the message.
func errDropped(err error) bool {
	return errors.Is(err, agent.ErrMessageDropped)
}

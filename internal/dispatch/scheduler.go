// Package dispatch implements the dispatch queue and the cooperative
// scheduler that drains it.
//
// One control loop dequeues envelopes in global submission order. A single
// execution slot (the baton) guarantees that at most one handler runs at a
// time: the loop must own the baton to dequeue and hands it to the
// invocation it starts. An invocation gives the baton back when it finishes
// or when it suspends through agent.Suspend, which lets the loop dequeue the
// next envelope while the first invocation is still in flight.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/pkg/observability"
)

// DeliverFunc resolves the recipient and runs the handler for env.
type DeliverFunc func(ctx context.Context, env *Envelope) (any, error)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records queue and delivery metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithRateLimit paces dequeues with l.
func WithRateLimit(l *rate.Limiter) Option {
	return func(s *Scheduler) {
		s.limiter = l
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSkipHook is called for every envelope without a future that is
// skipped because its context ended before dequeue. Envelopes with a future
// report the skip through it instead.
func WithSkipHook(fn func(env *Envelope, err error)) Option {
	return func(s *Scheduler) {
		s.onSkip = fn
	}
}

// Scheduler owns the dispatch queue and its control loop.
type Scheduler struct {
	deliver DeliverFunc

	mu          sync.Mutex
	queue       queue
	inFlight    int
	running     bool
	closed      bool
	gen         uint64
	cancelLoop  context.CancelFunc
	idleWaiters []*idleWaiter

	wake  chan struct{}
	baton chan struct{}

	limiter *rate.Limiter
	metrics *observability.Metrics
	logger  *slog.Logger
	onSkip  func(env *Envelope, err error)
}

type idleWaiter struct {
	done chan struct{}
	err  error
}

// NewScheduler creates a stopped scheduler that hands envelopes to deliver.
func NewScheduler(deliver DeliverFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		deliver: deliver,
		wake:    make(chan struct{}, 1),
		baton:   make(chan struct{}, 1),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue appends envs to the queue as one contiguous batch. It succeeds
// while stopped; only a closed scheduler rejects it.
func (s *Scheduler) Enqueue(envs ...*Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	now := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return agent.ErrRuntimeClosed
	}
	for _, env := range envs {
		env.EnqueuedAt = now
	}
	s.queue.push(envs...)
	depth := s.queue.len()
	s.mu.Unlock()

	s.metrics.RecordEnqueued(envs[0].Kind(), len(envs))
	s.metrics.SetQueueDepth(depth)
	s.signal()
	return nil
}

// Start begins draining the queue. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return agent.ErrRuntimeClosed
	}
	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.gen++
	s.cancelLoop = cancel
	go s.loop(ctx, s.gen)

	s.logger.Debug("scheduler started", "queued", s.queue.len())
	return nil
}

// Stop halts dequeuing and returns at once. In-flight invocations keep
// running to completion; queued envelopes stay queued. Pending StopWhenIdle
// calls fail with agent.ErrRuntimeNotRunning if work is left queued.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.failStrandedWaitersLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	s.running = false
	s.gen++
	s.cancelLoop()
	s.cancelLoop = nil
	s.logger.Debug("scheduler stopped", "queued", s.queue.len(), "in_flight", s.inFlight)
}

// StopWhenIdle blocks until the queue is empty and no invocation is in
// flight, then stops. The idle check and the wait registration happen under
// one lock, so an idle moment cannot slip between them. While stopped, a
// queue that is or becomes non-empty can never drain and the call fails
// with agent.ErrRuntimeNotRunning.
func (s *Scheduler) StopWhenIdle(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return agent.ErrRuntimeClosed
	}
	if s.idleLocked() {
		s.stopLocked()
		s.mu.Unlock()
		return nil
	}
	if err := s.strandedLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	w := &idleWaiter{done: make(chan struct{})}
	s.idleWaiters = append(s.idleWaiters, w)
	s.mu.Unlock()

	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		s.mu.Lock()
		for i, c := range s.idleWaiters {
			if c == w {
				s.idleWaiters = append(s.idleWaiters[:i:i], s.idleWaiters[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// Close stops the scheduler for good and returns the envelopes that were
// still queued. In-flight invocations are left to finish. Closing twice
// returns nil.
func (s *Scheduler) Close() []*Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.stopLocked()
	pending := s.queue.drain()
	s.releaseIdleWaitersLocked(agent.ErrRuntimeClosed)
	s.metrics.SetQueueDepth(0)
	return pending
}

// Len returns the number of queued envelopes.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// InFlight returns the number of invocations started and not finished.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Running reports whether the loop is draining the queue.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Closed reports whether Close was called.
func (s *Scheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Idle reports whether the queue is empty and nothing is in flight.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleLocked()
}

func (s *Scheduler) idleLocked() bool {
	return s.queue.len() == 0 && s.inFlight == 0
}

// strandedLocked reports queued work that a stopped scheduler will never
// drain.
func (s *Scheduler) strandedLocked() error {
	if s.running || s.queue.len() == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d envelopes queued", agent.ErrRuntimeNotRunning, s.queue.len())
}

func (s *Scheduler) failStrandedWaitersLocked() {
	if len(s.idleWaiters) == 0 {
		return
	}
	if err := s.strandedLocked(); err != nil {
		s.releaseIdleWaitersLocked(err)
	}
}

func (s *Scheduler) releaseIdleWaitersLocked(err error) {
	for _, w := range s.idleWaiters {
		w.err = err
		close(w.done)
	}
	s.idleWaiters = nil
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, gen uint64) {
	// A loop retiring after a restart may have swallowed a wake-up meant for
	// its successor.
	defer s.signal()

	for {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		empty := s.queue.len() == 0
		s.mu.Unlock()

		if empty {
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}

		select {
		case s.baton <- struct{}{}:
		case <-ctx.Done():
			return
		}

		env, ok := s.next(gen)
		if !ok {
			<-s.baton
			continue
		}
		go s.invoke(env)
	}
}

// next pops the head envelope and counts it in flight, unless the loop
// generation is stale.
func (s *Scheduler) next(gen uint64) (*Envelope, bool) {
	s.mu.Lock()
	if s.gen != gen || !s.running {
		s.mu.Unlock()
		return nil, false
	}
	env, ok := s.queue.pop()
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	s.inFlight++
	depth, inFlight := s.queue.len(), s.inFlight
	s.mu.Unlock()

	s.metrics.SetQueueDepth(depth)
	s.metrics.SetInFlight(inFlight)
	s.metrics.ObserveQueueWait(time.Since(env.EnqueuedAt))
	return env, true
}

// invoke runs on its own goroutine and owns the baton on entry.
func (s *Scheduler) invoke(env *Envelope) {
	t := &task{baton: s.baton}
	t.held.Store(true)
	start := time.Now()

	var (
		value any
		err   error
	)
	if cerr := env.Context.Err(); cerr != nil {
		err = cerr
		if env.Future == nil && s.onSkip != nil {
			s.onSkip(env, cerr)
		}
	} else {
		value, err = s.safeDeliver(agent.ContextWithYielder(env.Context, t), env)
	}

	if env.Future != nil {
		env.Future.Resolve(value, err)
	}
	s.metrics.RecordDelivery(string(env.Recipient.Type), outcome(env, err), time.Since(start))

	t.Release()
	s.complete()
}

func (s *Scheduler) safeDeliver(ctx context.Context, env *Envelope) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &agent.HandlerError{
				Recipient: env.Recipient,
				MessageID: env.ID,
				Err:       fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return s.deliver(ctx, env)
}

func (s *Scheduler) complete() {
	s.mu.Lock()
	s.inFlight--
	inFlight := s.inFlight
	switch {
	case len(s.idleWaiters) == 0:
	case s.idleLocked():
		s.stopLocked()
		s.releaseIdleWaitersLocked(nil)
	default:
		s.failStrandedWaitersLocked()
	}
	s.mu.Unlock()

	s.metrics.SetInFlight(inFlight)
}

func outcome(env *Envelope, err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case env.Context.Err() != nil && err == env.Context.Err():
		return observability.OutcomeCancelled
	default:
		return observability.OutcomeError
	}
}

// task is the per-invocation view of the baton installed as the handler's
// agent.Yielder.
type task struct {
	baton chan struct{}
	held  atomic.Bool
}

func (t *task) Release() bool {
	if !t.held.CompareAndSwap(true, false) {
		return false
	}
	<-t.baton
	return true
}

func (t *task) Reacquire() {
	t.baton <- struct{}{}
	t.held.Store(true)
}

// Package schedule publishes messages to topics on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aixgo-dev/agentrt/agent"
)

var (
	// ErrDuplicateJob is returned when a job name is already scheduled.
	ErrDuplicateJob = errors.New("job already scheduled")

	// ErrJobNotFound is returned for an unknown job name.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidJob is returned for a job missing its name, topic or payload.
	ErrInvalidJob = errors.New("invalid job")
)

// Publisher is the slice of agent.Runtime a scheduler needs.
type Publisher interface {
	Publish(ctx context.Context, payload any, topic agent.TopicID, opts ...agent.SendOption) error
}

// Job publishes the result of Payload to Topic every time Spec fires.
type Job struct {
	Name    string
	Spec    string
	Topic   agent.TopicID
	Payload func(at time.Time) any
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocation evaluates specs in loc instead of the local time zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

// Scheduler runs publish jobs on a cron clock.
type Scheduler struct {
	pub      Publisher
	logger   *slog.Logger
	location *time.Location
	parser   cron.Parser
	cron     *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	jobs    map[string]*publishJob
}

// New creates a stopped scheduler publishing through pub. Specs accept the
// standard five fields, an optional leading seconds field, and descriptors
// such as "@hourly" or "@every 30s".
func New(pub Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		pub:      pub,
		logger:   slog.New(slog.DiscardHandler),
		location: time.Local,
		parser: cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
		entries: make(map[string]cron.EntryID),
		jobs:    make(map[string]*publishJob),
	}
	for _, opt := range opts {
		opt(s)
	}

	logger := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return s
}

// Add schedules job.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Topic.Type == "" || job.Payload == nil {
		return fmt.Errorf("%w: name, topic and payload are required", ErrInvalidJob)
	}
	sched, err := s.parser.Parse(job.Spec)
	if err != nil {
		return fmt.Errorf("%w: job %s: %v", ErrInvalidJob, job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}

	pj := &publishJob{job: job, pub: s.pub, logger: s.logger}
	s.entries[job.Name] = s.cron.Schedule(sched, pj)
	s.jobs[job.Name] = pj
	s.logger.Debug("job scheduled", "job", job.Name, "spec", job.Spec, "topic", job.Topic.String())
	return nil
}

// Remove unschedules the named job.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	delete(s.jobs, name)
	return nil
}

// RunNow fires the named job once, synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	pj, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return pj.publish(time.Now())
}

// Jobs returns the scheduled job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next returns the next activation of the named job. It is zero while the
// scheduler is stopped.
func (s *Scheduler) Next(name string) (time.Time, error) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.cron.Entry(id).Next, nil
}

// Start runs the cron clock in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the clock and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publishJob adapts a Job to cron.Job.
type publishJob struct {
	job    Job
	pub    Publisher
	logger *slog.Logger
}

func (p *publishJob) Run() {
	if err := p.publish(time.Now()); err != nil {
		p.logger.Warn("scheduled publish failed", "job", p.job.Name, "error", err)
	}
}

func (p *publishJob) publish(at time.Time) error {
	err := p.pub.Publish(context.Background(), p.job.Payload(at), p.job.Topic)
	if err != nil {
		return fmt.Errorf("job %s: %w", p.job.Name, err)
	}
	return nil
}

// cronLogger forwards cron's logr-style calls to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

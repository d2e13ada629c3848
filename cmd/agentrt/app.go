package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aixgo-dev/agentrt"
	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/agents"
	tracing "github.com/aixgo-dev/agentrt/internal/observability"
	"github.com/aixgo-dev/agentrt/internal/schedule"
	"github.com/aixgo-dev/agentrt/pkg/config"
	"github.com/aixgo-dev/agentrt/pkg/observability"
)

// app is a runtime wired to everything the configuration asks for.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	rt       *agentrt.Runtime
	jobs     *schedule.Scheduler
	registry *prometheus.Registry
	checker  *observability.HealthChecker
	server   *observability.Server
	tracing  bool
}

// newApp builds the runtime and registers the configured agents,
// subscriptions and schedules. Nothing runs until start.
func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   cfg.Logging.NewLogger(logOut),
		registry: prometheus.NewRegistry(),
		checker:  observability.NewHealthChecker(Version),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Tracing.Enabled {
		tc := tracing.Config{
			ServiceName:  cfg.Tracing.ServiceName,
			Enabled:      true,
			ExporterType: cfg.Tracing.Exporter,
			OTLPEndpoint: cfg.Tracing.Endpoint,
			Insecure:     cfg.Tracing.Insecure,
			Writer:       logOut,
		}.ApplyEnv()
		if err := tracing.Init(tc); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.tracing = true
	}

	a.rt = agentrt.New(
		agentrt.WithLogger(a.logger),
		agentrt.WithMetrics(observability.NewMetrics(a.registry)),
		agentrt.WithTracing(a.tracing),
		agentrt.WithDispatchRate(cfg.Runtime.DispatchRate, cfg.Runtime.DispatchBurst),
	)
	a.jobs = schedule.New(a.rt, schedule.WithLogger(a.logger.With("component", "schedule")))
	a.checker.RegisterCheck(&observability.HealthCheck{
		Name:      "runtime",
		CheckFunc: a.rt.Ping,
		Critical:  true,
		Timeout:   time.Second,
	})
	if cfg.Metrics.Enabled {
		a.server = observability.NewServer(cfg.Metrics.Addr, a.registry, a.checker)
	}

	if err := a.wire(); err != nil {
		_ = a.rt.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	env := agents.Env{Logger: a.logger.With("component", "agents")}
	for _, ac := range a.cfg.Agents {
		f, err := agents.Factory(ac.Kind, env)
		if err != nil {
			return fmt.Errorf("agent %s: %w", ac.Name, err)
		}
		if _, err := a.rt.Register(ac.Name, f); err != nil {
			return fmt.Errorf("agent %s: %w", ac.Name, err)
		}
	}

	for _, sc := range a.cfg.Subscriptions {
		var sub agent.Subscription
		if sc.Prefix {
			sub = agent.NewTypePrefixSubscription(sc.Topic, agent.AgentType(sc.Agent))
		} else {
			sub = agent.NewTypeSubscription(sc.Topic, agent.AgentType(sc.Agent))
		}
		if err := a.rt.AddSubscription(sub); err != nil {
			return fmt.Errorf("subscription %s -> %s: %w", sc.Topic, sc.Agent, err)
		}
	}

	for _, sc := range a.cfg.Schedules {
		job := schedule.Job{
			Name:    sc.Name,
			Spec:    sc.Spec,
			Topic:   agent.TopicID{Type: sc.Topic, Source: sc.Source},
			Payload: schedulePayload(sc),
		}
		if err := a.jobs.Add(job); err != nil {
			return err
		}
	}
	return nil
}

// schedulePayload publishes agents.Tick unless the schedule names a fixed
// text payload.
func schedulePayload(sc config.ScheduleConfig) func(time.Time) any {
	if sc.Payload != "" {
		text := sc.Payload
		return func(time.Time) any { return text }
	}
	name := sc.Name
	return func(at time.Time) any { return agents.Tick{Job: name, At: at} }
}

// start runs the runtime, the cron clock and the metrics server.
func (a *app) start() error {
	if err := a.rt.Start(); err != nil {
		return err
	}
	a.jobs.Start()

	if a.server != nil {
		if err := a.server.Listen(); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		go func() {
			if err := a.server.Serve(); err != nil {
				a.logger.Error("metrics server failed", "error", err)
			}
		}()
		a.logger.Info("observability server listening", "addr", a.server.Addr())
	}
	a.logger.Info("agentrt started",
		"version", Version,
		"agents", len(a.cfg.Agents),
		"subscriptions", len(a.cfg.Subscriptions),
		"schedules", len(a.jobs.Jobs()))
	return nil
}

// shutdown stops the clock, drains the queue within the configured timeout
// and closes everything. A drain that times out is logged, not returned.
func (a *app) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Runtime.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.jobs.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop schedules: %w", err))
	}
	if err := a.rt.StopWhenIdle(ctx); err != nil {
		a.logger.Warn("runtime did not drain before shutdown", "error", err, "queued", a.rt.Stats().Queued)
	}
	if err := a.rt.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if a.tracing {
		if err := tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}
	a.logger.Info("agentrt stopped")
	return errors.Join(errs...)
}

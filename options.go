package agentrt

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/pkg/observability"
)

// DeliveryErrorHandler receives failures of published messages, which have
// no caller waiting on a result.
type DeliveryErrorHandler func(mctx agent.MessageContext, err error)

// RuntimeConfig contains configuration options for creating a runtime
type RuntimeConfig struct {
	// Logger receives runtime events. Default: discard.
	Logger *slog.Logger

	// Metrics records queue and delivery metrics. Default: nil (disabled).
	Metrics *observability.Metrics

	// Tracing opens an OpenTelemetry span around every delivery.
	// Default: false
	Tracing bool

	// DispatchRate caps dequeues per second (0 = unlimited).
	DispatchRate rate.Limit

	// DispatchBurst is the limiter burst when DispatchRate is set.
	// Default: 1
	DispatchBurst int

	// Interventions see every message before it is queued and every RPC
	// result before it reaches the caller, in registration order.
	Interventions []InterventionHandler

	// OnDeliveryError is called for every failed publish delivery.
	OnDeliveryError DeliveryErrorHandler
}

// DefaultConfig returns a RuntimeConfig with sensible defaults
func DefaultConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Logger:        slog.New(slog.DiscardHandler),
		DispatchBurst: 1,
	}
}

// Option is a functional option for configuring a runtime
type Option func(*RuntimeConfig)

// WithLogger sets the runtime logger
func WithLogger(l *slog.Logger) Option {
	return func(cfg *RuntimeConfig) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics(m *observability.Metrics) Option {
	return func(cfg *RuntimeConfig) {
		cfg.Metrics = m
	}
}

// WithTracing enables or disables delivery spans
func WithTracing(enabled bool) Option {
	return func(cfg *RuntimeConfig) {
		cfg.Tracing = enabled
	}
}

// WithDispatchRate limits how many envelopes are dequeued per second
func WithDispatchRate(perSecond float64, burst int) Option {
	return func(cfg *RuntimeConfig) {
		cfg.DispatchRate = rate.Limit(perSecond)
		if burst > 0 {
			cfg.DispatchBurst = burst
		}
	}
}

// WithIntervention appends an intervention handler
func WithIntervention(h InterventionHandler) Option {
	return func(cfg *RuntimeConfig) {
		if h != nil {
			cfg.Interventions = append(cfg.Interventions, h)
		}
	}
}

// WithDeliveryErrorHandler sets the callback for failed publish deliveries
func WithDeliveryErrorHandler(fn DeliveryErrorHandler) Option {
	return func(cfg *RuntimeConfig) {
		cfg.OnDeliveryError = fn
	}
}

package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Server exposes /metrics and the health probes over HTTP.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a server bound to addr. A nil checker serves only
// liveness and metrics.
func NewServer(addr string, gatherer prometheus.Gatherer, checker *HealthChecker) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewMux(gatherer, checker),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// NewMux builds the observability routes.
func NewMux(gatherer prometheus.Gatherer, checker *HealthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", LivenessHandler())
	if checker != nil {
		mux.HandleFunc("/health", checker.HealthHandler())
		mux.HandleFunc("/health/ready", checker.ReadinessHandler())
	}
	if gatherer != nil {
		mux.Handle("/metrics", MetricsHandler(gatherer))
	}
	return mux
}

// Listen binds the listening socket so Addr is known before Serve.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Serve blocks serving requests until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

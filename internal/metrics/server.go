package metrics

import (
	"context"
	"errors"
	"net/http"

	"vnodefs/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	serverLogger = logging.GetLogger().WithPrefix("metrics-server")
)

// Server serves Prometheus metrics on a dedicated HTTP address.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a metrics server exposing /metrics on addr.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: Handler(reg),
		},
	}
}

// Handler returns the mux serving /metrics for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// Start begins serving metrics. Blocks until the server stops.
func (s *Server) Start() error {
	serverLogger.Info("Starting metrics server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		serverLogger.Error("Metrics server error: %v", err)
		return err
	}
	return nil
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the Prometheus registry and a liveness probe over HTTP,
// adapted from internal/metrics/server.go's MetricsServer to log through zap
// instead of the standard logger.
type Server struct {
	server *http.Server
	addr   string
	logger *zap.Logger
}

// NewServer builds a metrics server bound to addr (e.g. ":9090"); an empty
// addr defaults to ":9090".
func NewServer(addr string, logger *zap.Logger) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if addr[0] != ':' {
		addr = ":" + addr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		addr:   addr,
		logger: logger,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins serving metrics in the background.
func (s *Server) Start() {
	s.logger.Info("metrics server starting", zap.String("addr", s.addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/serving"
)

// requestTimeout bounds a single request, below the server write timeout
const requestTimeout = 25 * time.Second

// Server provides the prediction HTTP API
type Server struct {
	service    *serving.Service
	port       string
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates a new API server
func NewServer(service *serving.Service, port string, logger *zap.Logger) *Server {
	s := &Server{
		service: service,
		port:    port,
		mux:     http.NewServeMux(),
		logger:  logger.Named("api"),
	}

	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// registerRoutes sets up the HTTP routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("POST /predict", s.handlePredict)
}

// Handler returns the routes wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		LoggerMiddleware(s.logger),
		TimeoutMiddleware(requestTimeout),
	)(s.mux)
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

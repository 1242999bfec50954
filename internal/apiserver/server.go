// Package apiserver serves the hostel REST API.
package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/klubi/hostel/internal/config"
	"github.com/klubi/hostel/internal/metrics"
	"github.com/klubi/hostel/internal/scheduler"
	"github.com/klubi/hostel/internal/store"
)

// Server exposes students, rooms and allocations over HTTP and triggers
// allocation runs on request.
type Server struct {
	router    *mux.Router
	hostel    *store.Hostel
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
	admin     config.AdminConfig
	logger    *zap.Logger
	now       func() time.Time
	handler   http.Handler
	server    *http.Server
}

// NewServer creates a fully-wired Server ready to Start(). m may be nil.
func NewServer(addr string, h *store.Hostel, sched *scheduler.Scheduler, m *metrics.Metrics, admin config.AdminConfig, logger *zap.Logger) *Server {
	srv := &Server{
		router:    mux.NewRouter(),
		hostel:    h,
		scheduler: sched,
		metrics:   m,
		admin:     admin,
		logger:    logger,
		now:       time.Now,
	}
	srv.registerRoutes()
	srv.handler = srv.middleware(srv.router)
	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv
}

// middleware wraps the router with CORS, panic recovery and an access log
// that goes through the zap logger.
func (s *Server) middleware(next http.Handler) http.Handler {
	stdLog := zap.NewStdLog(s.logger.Named("http"))

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(stdLog),
		handlers.PrintRecoveryStack(true),
	)(next)

	return handlers.CombinedLoggingHandler(stdLog.Writer(), cors(recovered))
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	s.logger.Info("API server starting", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

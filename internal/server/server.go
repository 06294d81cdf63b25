// Package server wires the gateway's HTTP surface: routes, middleware
// ordering, and the lifecycle of the listener.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/licitalens/licitalens/internal/core/backend"
	"github.com/licitalens/licitalens/internal/core/engine"
	"github.com/licitalens/licitalens/internal/core/ratelimit"
	"github.com/licitalens/licitalens/internal/core/relay"
	apperrors "github.com/licitalens/licitalens/internal/errors"
	"github.com/licitalens/licitalens/internal/observability"
	"github.com/licitalens/licitalens/internal/server/handlers"
	servermw "github.com/licitalens/licitalens/internal/server/middleware"
)

// Deps carries the gateway components the server exposes over HTTP.
type Deps struct {
	Relay           *relay.Relay
	Coordinator     *engine.Coordinator
	Backend         *backend.Client
	LoginLimiter    *ratelimit.Limiter
	RegisterLimiter *ratelimit.Limiter
	Health          *handlers.HealthManager
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	host   string
	port   int
	deps   Deps
}

// New creates a new HTTP server instance
func New(host string, port int, deps Deps) *Server {
	r := chi.NewRouter()

	// Standard chi middleware
	r.Use(middleware.RealIP)

	// Custom middleware in order: correlation pass-through first so every
	// later stage sees the id, then metrics, then panic recovery.
	r.Use(servermw.Correlation)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	// Standardized error responses using centralized HandleError
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewNotFoundError("The requested resource was not found")
		HandleError(w, req, err)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource")
		HandleError(w, req, err)
	})

	s := &Server{
		router: r,
		host:   host,
		port:   port,
		deps:   deps,
	}

	// Ensure handlers use the centralized error responder
	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: SSE streams are long-lived and a write deadline
		// would sever them mid-relay. Idle detection lives in the relay
		// itself.
		IdleTimeout: 120 * time.Second,
	}

	observability.ServerLogger.Info("Starting HTTP server",
		zap.String("host", s.host),
		zap.Int("port", s.port),
		zap.String("addr", addr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	observability.ServerLogger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.port
}

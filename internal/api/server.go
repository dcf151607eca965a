package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/study01/study-app-server/internal/config"
	"github.com/study01/study-app-server/internal/database"
	"github.com/study01/study-app-server/internal/metrics"
	"github.com/study01/study-app-server/internal/middleware"
)

// SessionProvider hands out request-scoped database sessions.
type SessionProvider interface {
	WithSession(ctx context.Context, role database.Role, fn func(context.Context, *database.Session) error) error
	Ping(ctx context.Context) error
}

// OrganizationReader loads organization names through a session.
type OrganizationReader interface {
	ListNames(ctx context.Context, q database.Querier) ([]string, error)
}

// Server wires HTTP handlers to the database layer.
type Server struct {
	router   chi.Router
	sessions SessionProvider
	orgs     OrganizationReader
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	sessions SessionProvider,
	orgs OrganizationReader,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sessions: sessions,
		orgs:     orgs,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientIP(cfg.IsLocal()))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	r.Use(chimw.Compress(5))
	if timeout := cfg.RequestTimeout(); timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/hello", s.hello)
		r.Get("/organizations", s.listOrganizations)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) hello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello World"})
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetClientIP(r.Context()); !ok {
		s.fail(w, r, ErrInvalidIPAddress)
		return
	}

	var names []string
	err := s.sessions.WithSession(r.Context(), database.RoleReplica, func(ctx context.Context, sess *database.Session) error {
		var err error
		names, err = s.orgs.ListNames(ctx, sess)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

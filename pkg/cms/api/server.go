// Package api exposes the content service over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth"
	"github.com/tendant/chi-demo/app"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/auth"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/urlstrategy"
)

const defaultMaxUploadBytes = 10 << 20

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the HTTP handlers to the content and auth services.
type Server struct {
	service        cms.Service
	auth           *auth.Service
	urls           urlstrategy.URLStrategy
	media          cms.BlobStore
	pinger         Pinger
	logger         *slog.Logger
	maxUploadBytes int64
	corsOrigins    []string
}

// Option is a function that configures a Server.
type Option func(*Server)

// WithURLStrategy sets how stored file references are rendered.
func WithURLStrategy(s urlstrategy.URLStrategy) Option {
	return func(srv *Server) {
		if s != nil {
			srv.urls = s
		}
	}
}

// WithMediaStore serves local references from store under /media/.
func WithMediaStore(store cms.BlobStore) Option {
	return func(srv *Server) {
		srv.media = store
	}
}

// WithPinger sets the readiness check.
func WithPinger(p Pinger) Option {
	return func(srv *Server) {
		srv.pinger = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(srv *Server) {
		if logger != nil {
			srv.logger = logger
		}
	}
}

// WithMaxUploadBytes caps request bodies of upload endpoints.
func WithMaxUploadBytes(n int64) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.maxUploadBytes = n
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(srv *Server) {
		srv.corsOrigins = origins
	}
}

// New creates a Server.
func New(service cms.Service, authService *auth.Service, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("content service is required")
	}
	if authService == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	s := &Server{
		service:        service,
		auth:           authService,
		urls:           urlstrategy.NewLocalStrategy("/media/"),
		logger:         slog.Default(),
		maxUploadBytes: defaultMaxUploadBytes,
		corsOrigins:    []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Routes returns the root handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	app.RoutesHealthz(r)
	r.Get("/readyz", s.readyz)
	if s.media != nil {
		r.Get("/media/*", s.serveMedia)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(jwtauth.Verifier(s.auth.JWTAuth()))
		r.Use(s.authenticate)

		r.Mount("/auth", s.authRoutes())
		r.Mount("/blogs", s.blogRoutes())
		r.Mount("/research", s.researchRoutes())
		r.Mount("/images", s.imageRoutes(cms.ImageKindAsset))
		r.Mount("/content-images", s.imageRoutes(cms.ImageKindContent))
	})

	return r
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.ErrorContext(r.Context(), "readiness check failed", "error", err)
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

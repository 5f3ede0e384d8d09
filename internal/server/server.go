package server

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mining-bot/internal/store"
	"mining-bot/internal/utils"
)

type Config struct {
	Addr  string
	Log   zerolog.Logger
	Store store.Store
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer            prometheus.Gatherer
	MetricsAllowedCIDRs []string
	Now                 func() time.Time
}

// Server exposes health, read-only user profiles and metrics over HTTP.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	store   store.Store
	allowed []netip.Prefix
	now     func() time.Time
}

func New(cfg Config) (*Server, error) {
	allowed, err := utils.ParsePrefixes(cfg.MetricsAllowedCIDRs)
	if err != nil {
		return nil, fmt.Errorf("metrics allow list: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		store:   cfg.Store,
		allowed: allowed,
		now:     now,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.Gatherer)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/users/{id}", s.handleGetUser)
	})

	if gatherer != nil {
		s.router.With(s.allowListMiddleware).
			Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// allowListMiddleware only trusts the socket peer address, forwarded
// headers are ignored.
func (s *Server) allowListMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !utils.IsAllowedIP(r.RemoteAddr, s.allowed) {
			s.log.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("Rejected request from disallowed address")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package server implements the tracehook HTTP service: usage report
// intake, token administration, and health.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tracehook/internal/config"
	"github.com/thebtf/tracehook/internal/journal"
	"github.com/thebtf/tracehook/internal/registry"
	"github.com/thebtf/tracehook/internal/tracing"
	"github.com/thebtf/tracehook/pkg/models"
)

// Service wires the HTTP surface to the registry, reporter, and journal.
type Service struct {
	version  string
	config   *config.Config
	registry *registry.Registry
	reporter *tracing.Reporter
	journal  *journal.Journal

	router    *chi.Mux
	startTime time.Time
	ready     atomic.Bool
}

// New assembles the service and its routes. The journal may be nil;
// reports are then delivered without being journaled.
func New(cfg *config.Config, reg *registry.Registry, reporter *tracing.Reporter, jrnl *journal.Journal, version string) *Service {
	s := &Service{
		version:   version,
		config:    cfg,
		registry:  reg,
		reporter:  reporter,
		journal:   jrnl,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Router returns the HTTP handler, for tests and embedding.
func (s *Service) Router() http.Handler {
	return s.router
}

func (s *Service) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.With(s.requireScope(models.ScopeUsageWrite)).Post("/report", s.handleReport)

		r.Route("/tokens", func(r chi.Router) {
			r.Use(s.requireScope(models.ScopeAdmin))
			r.Post("/generate", s.handleGenerateToken)
			r.Post("/revoke", s.handleRevokeToken)
			r.Get("/", s.handleListTokens)
		})

		r.With(s.requireScope(models.ScopeAdmin)).Get("/reports/recent", s.handleRecentReports)
	})
}

// Start serves HTTP until ctx is cancelled, then drains connections
// with a five second grace period.
func (s *Service) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", s.version).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	s.ready.Store(true)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return <-errCh
	}
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

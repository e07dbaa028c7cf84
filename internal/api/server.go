package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eargollo/archiver/internal/api/handlers"
	"github.com/eargollo/archiver/internal/ingest"
	"github.com/eargollo/archiver/internal/scheduler"
)

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// Options carries the optional knobs of New.
type Options struct {
	Walkers int
	Version string
}

// New wires all routes and returns a Server ready to Run.
func New(addr string, st handlers.ProfileStore, mgr *ingest.Manager, sched *scheduler.Scheduler, opts Options) *Server {
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: Router(st, mgr, sched, opts), ReadHeaderTimeout: 10 * time.Second},
	}
}

// Router builds the route tree. Exposed for httptest.
func Router(st handlers.ProfileStore, mgr *ingest.Manager, sched *scheduler.Scheduler, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	profilesH := &handlers.ProfilesHandler{Store: st}
	ingestH := &handlers.IngestHandler{Manager: mgr, Walkers: opts.Walkers}
	statusH := &handlers.StatusHandler{Ingest: ingestH, Sched: sched, Version: opts.Version}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)

		r.Post("/profiles", profilesH.Create)
		r.Get("/profiles", profilesH.List)
		r.Get("/profiles/{id}", profilesH.Get)
		r.Get("/profiles/{id}/files", profilesH.Files)
		r.Post("/profiles/{id}/ingest", ingestH.Start)

		r.Get("/ingest", ingestH.Current)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

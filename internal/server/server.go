// Package server wires the catalog store, the metadata resolver and the
// enrichment runner into a chi HTTP router.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lepinkainen/tome/internal/config"
	"github.com/lepinkainen/tome/internal/datastore"
	"github.com/lepinkainen/tome/internal/enrich"
	"github.com/lepinkainen/tome/internal/metadata"
)

// Server is the HTTP front of the catalog.
type Server struct {
	router chi.Router
}

// Options toggles optional routes.
type Options struct {
	// DebugDB mounts /debug/db when true.
	DebugDB bool
	// AllowedOrigins is passed to the CORS middleware.
	AllowedOrigins []string
}

// DefaultOptions reads the toggles from the loaded configuration.
func DefaultOptions() Options {
	return Options{
		DebugDB:        config.DebugDB,
		AllowedOrigins: config.CORSOrigins,
	}
}

// New builds the router with all routes registered.
func New(store *datastore.Store, resolver *metadata.Resolver, runner *enrich.Runner, opts Options) *Server {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.CleanPath)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	if opts.DebugDB {
		r.Mount("/debug", NewDebugHandler(store).Routes())
	}

	r.Mount("/api/books", NewBooksHandler(store, runner).Routes())

	// The external search endpoints answer on both prefixes.
	ext := NewExternalHandler(resolver)
	r.Mount("/api/ext", ext.Routes())
	r.Mount("/api/external", ext.Routes())

	return &Server{router: r}
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks serving HTTP on the given port until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// requestLogger logs every request with its status and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Millisecond))
	})
}

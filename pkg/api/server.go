// Package api serves a read-only HTTP view of a FrameDB catalog and its
// records, plus Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the inspector routes. gatherer backs /metrics.
func NewRouter(s *Server, gatherer prometheus.Gatherer) http.Handler {
	m := s.metrics
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		if s.config.APIKey != "" {
			auth := apiKeyMiddleware(s.config.APIKey)
			if m != nil {
				auth = m.InstrumentAuthMiddleware(auth)
			}
			r.Use(auth)
		}

		r.Get("/health", m.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))
		r.Get("/catalog", m.InstrumentHandler("GET", "/api/v1/catalog", s.handleCatalog))

		r.Get("/datasets", m.InstrumentHandler("GET", "/api/v1/datasets", s.handleListDatasets))
		r.Get("/datasets/{name}", m.InstrumentHandler("GET", "/api/v1/datasets/{name}", s.handleGetDataset))
		r.Get("/datasets/{name}/items/{item}", m.InstrumentHandler("GET", "/api/v1/datasets/{name}/items/{item}", s.handleGetItem))

		r.Get("/jobs/{name}", m.InstrumentHandler("GET", "/api/v1/jobs/{name}", s.handleGetJob))

		r.Get("/snapshots", m.InstrumentHandler("GET", "/api/v1/snapshots", s.handleSnapshots))
	})

	return r
}

// StartServer serves handler until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, handler http.Handler, config ServerConfig) error {
	addr := net.JoinHostPort(config.Bind, fmt.Sprint(config.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

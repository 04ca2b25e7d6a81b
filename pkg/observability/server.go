package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter builds the agent's HTTP surface: Prometheus metrics, health and readiness
// probes, plus the diagnostics routes mounted under /v1. Only /v1 gets the request
// metrics and the given middlewares, so scrapers and probes are never rate limited.
func NewRouter(healthChecker *HealthChecker, setupRoutes func(chi.Router), middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// Prometheus metrics endpoint
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Health and readiness probes
	if healthChecker != nil {
		r.Get("/health", healthChecker.HealthHandler())
		r.Get("/ready", healthChecker.ReadyHandler())
	}

	if setupRoutes != nil {
		r.Route("/v1", func(r chi.Router) {
			r.Use(HTTPMiddleware)
			r.Use(middlewares...)
			setupRoutes(r)
		})
	}

	return r
}

// StartServer starts an HTTP server for metrics, health checks and diagnostics
func StartServer(port string, handler http.Handler, logger *zap.Logger) *http.Server {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		logger.Info("Diagnostics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Diagnostics server error", zap.Error(err))
		}
	}()

	return server
}

// ShutdownServer gracefully shuts down the server
func ShutdownServer(ctx context.Context, server *http.Server) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/vault-secret-agent/pkg/resilience"
)

// Timeout adds the diagnostics deadline to HTTP handlers
type Timeout struct {
	config *resilience.TimeoutConfig
	logger *zap.Logger
}

// NewTimeout creates a new timeout middleware
func NewTimeout(config *resilience.TimeoutConfig, logger *zap.Logger) *Timeout {
	return &Timeout{
		config: config,
		logger: logger,
	}
}

// Middleware wraps handlers with the diagnostics timeout
func (t *Timeout) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check if context already has a deadline
		if _, hasDeadline := r.Context().Deadline(); hasDeadline {
			// Parent context has deadline - respect it
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := t.config.DiagnosticsContext(r.Context())
		defer cancel()

		t.logger.Debug("Applied diagnostics timeout",
			zap.String("path", r.URL.Path),
			zap.Duration("timeout", t.config.Diagnostics),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/kevin07696/vault-secret-agent/pkg/encoding"
	"github.com/kevin07696/vault-secret-agent/pkg/timeutil"
)

// HealthStatus represents the health status of the agent
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// SessionProbe reports whether the agent currently holds a valid token
type SessionProbe interface {
	IsAuthenticated() bool
	StateName() string
}

// ReadinessProbe reports whether the bootstrap pass has completed
type ReadinessProbe interface {
	Ready() bool
}

// CheckFunc is an optional dependency check (e.g. the Redis mirror)
type CheckFunc func(ctx context.Context) error

// HealthChecker manages health checks for the agent
type HealthChecker struct {
	session   SessionProbe
	readiness ReadinessProbe
	checks    map[string]CheckFunc
}

// NewHealthChecker creates a new HealthChecker
func NewHealthChecker(session SessionProbe, readiness ReadinessProbe) *HealthChecker {
	return &HealthChecker{
		session:   session,
		readiness: readiness,
		checks:    make(map[string]CheckFunc),
	}
}

// AddCheck registers a named dependency check. Must be called before serving.
func (h *HealthChecker) AddCheck(name string, fn CheckFunc) {
	h.checks[name] = fn
}

// Check performs health checks and returns the status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	checks := make(map[string]string)
	overallStatus := "healthy"

	// Vault session check
	if h.session != nil {
		if h.session.IsAuthenticated() {
			checks["vault_session"] = "healthy"
		} else {
			checks["vault_session"] = "unhealthy: state=" + h.session.StateName()
			overallStatus = "unhealthy"
		}
	} else {
		checks["vault_session"] = "not configured"
	}

	for name, fn := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := fn(checkCtx)
		cancel()

		if err != nil {
			checks[name] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: timeutil.Now(),
		Checks:    checks,
	}
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}

		_ = encoding.WriteJSON(w, code, status)
	}
}

// ReadyHandler returns an HTTP handler for the readiness probe
func (h *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.readiness != nil && !h.readiness.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

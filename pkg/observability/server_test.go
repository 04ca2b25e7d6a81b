package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	authenticated bool
	state         string
}

func (f fakeSession) IsAuthenticated() bool { return f.authenticated }
func (f fakeSession) StateName() string     { return f.state }

type fakeReadiness bool

func (f fakeReadiness) Ready() bool { return bool(f) }

func serve(t *testing.T, mux http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		session    fakeSession
		check      CheckFunc
		wantStatus int
		wantBody   string
	}{
		{"authenticated", fakeSession{true, "AUTHENTICATED"}, nil, http.StatusOK, "healthy"},
		{"unauthenticated", fakeSession{false, "UNAUTHENTICATED"}, nil, http.StatusServiceUnavailable, "unhealthy"},
		{"mirror_down", fakeSession{true, "AUTHENTICATED"}, func(context.Context) error { return errors.New("dial refused") }, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker(tt.session, fakeReadiness(true))
			if tt.check != nil {
				hc.AddCheck("redis_mirror", tt.check)
			}
			mux := NewRouter(hc, nil)

			rec := serve(t, mux, "/health")

			assert.Equal(t, tt.wantStatus, rec.Code)
			var status HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			assert.Equal(t, tt.wantBody, status.Status)
			assert.Contains(t, status.Checks, "vault_session")
		})
	}
}

func TestHealthCheck_ReportsState(t *testing.T) {
	hc := NewHealthChecker(fakeSession{false, "UNAUTHENTICATED"}, nil)

	status := hc.Check(context.Background())

	assert.Equal(t, "unhealthy: state=UNAUTHENTICATED", status.Checks["vault_session"])
}

func TestReadyHandler(t *testing.T) {
	notReady := NewRouter(NewHealthChecker(fakeSession{}, fakeReadiness(false)), nil)
	ready := NewRouter(NewHealthChecker(fakeSession{}, fakeReadiness(true)), nil)

	assert.Equal(t, http.StatusServiceUnavailable, serve(t, notReady, "/ready").Code)
	rec := serve(t, ready, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestNewRouter_MetricsAndRoutes(t *testing.T) {
	setup := func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("pong"))
		})
	}

	wrapped := 0
	counting := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped++
			next.ServeHTTP(w, r)
		})
	}

	mux := NewRouter(NewHealthChecker(fakeSession{true, "AUTHENTICATED"}, nil), setup, counting)

	rec := serve(t, mux, "/v1/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, 1, wrapped)

	rec = serve(t, mux, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, wrapped, "metrics bypass the middlewares")

	serve(t, mux, "/health")
	assert.Equal(t, 1, wrapped, "health checks bypass the middlewares")
}

func TestNewRouter_MiddlewaresRunInOrder(t *testing.T) {
	var order []string
	named := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	setup := func(r chi.Router) {
		r.Get("/session", func(w http.ResponseWriter, r *http.Request) {})
	}

	serve(t, NewRouter(nil, setup, named("outer"), named("inner")), "/v1/session")

	assert.Equal(t, []string{"outer", "inner"}, order)
}

// A middleware that swaps the request context must not hide the matched route
func TestHTTPMiddleware_LabelsFullRoutePattern(t *testing.T) {
	withDeadline := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	setup := func(r chi.Router) {
		r.Get("/secrets/*", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	mux := NewRouter(nil, setup, withDeadline)

	secrets := httpRequestsTotal.WithLabelValues("/v1/secrets/*", "404")
	prefix := httpRequestsTotal.WithLabelValues("/v1/*", "404")
	beforeSecrets, beforePrefix := testutil.ToFloat64(secrets), testutil.ToFloat64(prefix)

	rec := serve(t, mux, "/v1/secrets/db/creds")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, beforeSecrets+1, testutil.ToFloat64(secrets))
	assert.Equal(t, beforePrefix, testutil.ToFloat64(prefix))
}

func TestHTTPMiddleware_UnroutedRequest(t *testing.T) {
	unmatched := httpRequestsTotal.WithLabelValues("unmatched", "200")
	before := testutil.ToFloat64(unmatched)

	HTTPMiddleware(okHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/anything", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(unmatched))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
}

package diagnostics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/vault-secret-agent/internal/cache"
	"github.com/kevin07696/vault-secret-agent/internal/domain"
	"github.com/kevin07696/vault-secret-agent/internal/session"
	"github.com/kevin07696/vault-secret-agent/pkg/encoding"
)

// StateSource reports the token lifecycle state
type StateSource interface {
	State() domain.LifecycleState
}

// Handler serves read-only views of the secret cache and session
type Handler struct {
	cache   *cache.SecretCache
	session *session.Session
	state   StateSource
	reveal  bool
	logger  *zap.Logger
}

// NewHandler creates a new diagnostics handler.
// Secret values are masked unless reveal is set.
func NewHandler(
	secretCache *cache.SecretCache,
	sess *session.Session,
	state StateSource,
	reveal bool,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		cache:   secretCache,
		session: sess,
		state:   state,
		reveal:  reveal,
		logger:  logger,
	}
}

// SetupRoutes registers the diagnostics endpoints on r.
// Secret paths contain slashes, so a single secret is matched with a wildcard.
func (h *Handler) SetupRoutes(r chi.Router) {
	r.Get("/secrets", h.ListSecrets)
	r.Get("/secrets/*", h.GetSecret)
	r.Get("/session", h.GetSession)
}

// SecretResponse is one cache entry as served to clients
type SecretResponse struct {
	Path      string            `json:"path"`
	Version   *int64            `json:"version"`
	FetchedAt time.Time         `json:"fetched_at"`
	Fields    map[string]string `json:"fields"`
}

// SecretListResponse is the full cache snapshot, sorted by path
type SecretListResponse struct {
	Count   int              `json:"count"`
	Secrets []SecretResponse `json:"secrets"`
}

// SessionResponse describes the current token without exposing it
type SessionResponse struct {
	State         string     `json:"state"`
	Authenticated bool       `json:"authenticated"`
	Token         string     `json:"token,omitempty"`
	IssuedAt      *time.Time `json:"issued_at,omitempty"`
	LeaseSeconds  int64      `json:"lease_seconds"`
	Renewable     bool       `json:"renewable"`
	RemainingTTL  int64      `json:"remaining_ttl_seconds"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Path  string `json:"path,omitempty"`
}

// ListSecrets returns every cached entry
// GET /v1/secrets
func (h *Handler) ListSecrets(w http.ResponseWriter, r *http.Request) {
	entries := h.cache.Snapshot()

	resp := SecretListResponse{
		Count:   len(entries),
		Secrets: make([]SecretResponse, 0, len(entries)),
	}
	for _, entry := range entries {
		resp.Secrets = append(resp.Secrets, h.toSecretResponse(entry))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetSecret returns one cached entry or 404
// GET /v1/secrets/*
func (h *Handler) GetSecret(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")

	entry, ok := h.cache.Get(path)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "secret not cached", Path: path})
		return
	}

	h.writeJSON(w, http.StatusOK, h.toSecretResponse(entry))
}

// GetSession returns lifecycle state and token timing
// GET /v1/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	state := h.state.State()

	// A token kept after a failed login is still shown, but is not usable
	resp := SessionResponse{
		State:         state.String(),
		Authenticated: state == domain.StateAuthenticated && snap.Authenticated(),
		Token:         snap.MaskedToken(),
		LeaseSeconds:  snap.LeaseSeconds,
		Renewable:     snap.Renewable,
		RemainingTTL:  snap.RemainingTTL(h.session.Now()),
	}
	if snap.Authenticated() {
		issuedAt, expiresAt := snap.IssuedAt, snap.ExpiresAt()
		resp.IssuedAt = &issuedAt
		resp.ExpiresAt = &expiresAt
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) toSecretResponse(entry domain.SecretEntry) SecretResponse {
	return SecretResponse{
		Path:      entry.Path,
		Version:   entry.Version,
		FetchedAt: entry.FetchedAt,
		Fields:    entry.DisplayFields(h.reveal),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	if err := encoding.WriteJSON(w, status, body); err != nil {
		h.logger.Warn("Failed to write diagnostics response", zap.Error(err))
	}
}

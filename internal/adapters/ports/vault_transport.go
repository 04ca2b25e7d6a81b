package ports

import (
	"context"
)

// LoginResult is the normalized outcome of a successful AppRole login
type LoginResult struct {
	ClientToken          string
	LeaseDurationSeconds int64
	Renewable            bool
}

// RenewResult is the normalized outcome of a successful token self-renewal
type RenewResult struct {
	LeaseDurationSeconds int64
}

// AuthTransport defines the port for authenticating against the secret backend
// Implementations return *domain.AgentError failures:
//   - AuthFailure / RenewalFailure for non-2xx or malformed responses
//   - TransportFailure when no response was received
type AuthTransport interface {
	// Login exchanges AppRole credentials for a session token
	Login(ctx context.Context, roleID, secretID string) (*LoginResult, error)

	// Renew extends the lease of token in place
	Renew(ctx context.Context, token string) (*RenewResult, error)
}

// SecretData is one versioned key-value read
type SecretData struct {
	Fields  map[string]string
	Version *int64 // nil when the backend reported no version
}

// SecretReader defines the port for reading versioned key-value secrets
type SecretReader interface {
	// Read fetches secretPath under the KV mount using token.
	// Returns a FetchFailure (or a read TransportFailure) on error.
	Read(ctx context.Context, mountPath, secretPath, token string) (*SecretData, error)
}

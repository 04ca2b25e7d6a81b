package ports

import (
	"context"

	"github.com/kevin07696/vault-secret-agent/internal/domain"
)

// TokenLifecycle defines the port for the token lifecycle state machine
type TokenLifecycle interface {
	// Authenticate performs a full AppRole login and replaces the session.
	// On failure the session is left as it was and the state is UNAUTHENTICATED.
	Authenticate(ctx context.Context) error

	// Evaluate decides between no action, renewal and re-authentication based on
	// the remaining TTL, and applies the result to the session
	Evaluate(ctx context.Context) domain.EvaluationOutcome

	// State returns the current lifecycle state
	State() domain.LifecycleState
}

package ports

import (
	"context"

	"github.com/kevin07696/vault-secret-agent/internal/domain"
)

// CacheMirror publishes freshly fetched cache entries to an external store.
// Mirror failures never affect the in-memory cache.
type CacheMirror interface {
	Publish(ctx context.Context, entry domain.SecretEntry) error
	Close() error
}

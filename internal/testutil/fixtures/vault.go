package fixtures

import (
	"github.com/kevin07696/vault-secret-agent/internal/adapters/ports"
)

// LoginBuilder provides fluent API for building login results.
type LoginBuilder struct {
	result *ports.LoginResult
}

// NewLogin creates a login builder with sensible defaults.
func NewLogin() *LoginBuilder {
	return &LoginBuilder{
		result: &ports.LoginResult{
			ClientToken:          "hvs.CAESIFixtureToken0001",
			LeaseDurationSeconds: 3600,
			Renewable:            true,
		},
	}
}

// WithToken sets the client token.
func (b *LoginBuilder) WithToken(token string) *LoginBuilder {
	b.result.ClientToken = token
	return b
}

// WithLease sets the lease duration in seconds.
func (b *LoginBuilder) WithLease(seconds int64) *LoginBuilder {
	b.result.LeaseDurationSeconds = seconds
	return b
}

// NotRenewable marks the token as non-renewable.
func (b *LoginBuilder) NotRenewable() *LoginBuilder {
	b.result.Renewable = false
	return b
}

// Build returns the login result.
func (b *LoginBuilder) Build() *ports.LoginResult {
	out := *b.result
	return &out
}

// Renewal returns a renew-self result with the given lease.
func Renewal(seconds int64) *ports.RenewResult {
	return &ports.RenewResult{LeaseDurationSeconds: seconds}
}

// Secret returns a KV read result. version <= 0 means no version was reported.
func Secret(fields map[string]string, version int64) *ports.SecretData {
	data := &ports.SecretData{Fields: fields}
	if version > 0 {
		data.Version = Int64Ptr(version)
	}
	return data
}

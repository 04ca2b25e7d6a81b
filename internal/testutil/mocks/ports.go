// Package mocks provides shared mock implementations of the adapter and service ports for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/vault-secret-agent/internal/adapters/ports"
	"github.com/kevin07696/vault-secret-agent/internal/domain"
	serviceports "github.com/kevin07696/vault-secret-agent/internal/services/ports"
)

// MockAuthTransport mocks ports.AuthTransport
type MockAuthTransport struct {
	mock.Mock
}

func (m *MockAuthTransport) Login(ctx context.Context, roleID, secretID string) (*ports.LoginResult, error) {
	args := m.Called(ctx, roleID, secretID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.LoginResult), args.Error(1)
}

func (m *MockAuthTransport) Renew(ctx context.Context, token string) (*ports.RenewResult, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.RenewResult), args.Error(1)
}

// MockSecretReader mocks ports.SecretReader
type MockSecretReader struct {
	mock.Mock
}

func (m *MockSecretReader) Read(ctx context.Context, mountPath, secretPath, token string) (*ports.SecretData, error) {
	args := m.Called(ctx, mountPath, secretPath, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.SecretData), args.Error(1)
}

// MockCacheMirror mocks ports.CacheMirror
type MockCacheMirror struct {
	mock.Mock
}

func (m *MockCacheMirror) Publish(ctx context.Context, entry domain.SecretEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockCacheMirror) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockTokenLifecycle mocks the services TokenLifecycle port
type MockTokenLifecycle struct {
	mock.Mock
}

func (m *MockTokenLifecycle) Authenticate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTokenLifecycle) Evaluate(ctx context.Context) domain.EvaluationOutcome {
	args := m.Called(ctx)
	return args.Get(0).(domain.EvaluationOutcome)
}

func (m *MockTokenLifecycle) State() domain.LifecycleState {
	args := m.Called()
	return args.Get(0).(domain.LifecycleState)
}

var (
	_ serviceports.TokenLifecycle = (*MockTokenLifecycle)(nil)
	_ ports.AuthTransport         = (*MockAuthTransport)(nil)
	_ ports.SecretReader          = (*MockSecretReader)(nil)
	_ ports.CacheMirror           = (*MockCacheMirror)(nil)
)

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	adapterports "github.com/kevin07696/vault-secret-agent/internal/adapters/ports"
	"github.com/kevin07696/vault-secret-agent/internal/domain"
	"github.com/kevin07696/vault-secret-agent/internal/services/ports"
	"github.com/kevin07696/vault-secret-agent/internal/session"
	"github.com/kevin07696/vault-secret-agent/pkg/observability"
	"github.com/kevin07696/vault-secret-agent/pkg/resilience"
)

const tracerName = "github.com/kevin07696/vault-secret-agent/internal/services/lifecycle"

// Credentials are the AppRole identifiers used for every login
type Credentials struct {
	RoleID   string
	SecretID string
}

// Manager implements the TokenLifecycle port.
// mu is held for the whole of every login or renewal, so at most one of them is
// in flight and a stale renewal can never overwrite a fresher login.
type Manager struct {
	mu        sync.Mutex
	state     atomic.Int32
	transport adapterports.AuthTransport
	session   *session.Session
	creds     Credentials
	ratio     decimal.Decimal
	timeouts  *resilience.TimeoutConfig
	logger    *zap.Logger
	tracer    trace.Tracer
}

var _ ports.TokenLifecycle = (*Manager)(nil)

// NewManager creates a new token lifecycle manager.
// thresholdRatio is the fraction of the lease at which renewal starts, in [0,1].
func NewManager(
	transport adapterports.AuthTransport,
	sess *session.Session,
	creds Credentials,
	thresholdRatio decimal.Decimal,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
) (*Manager, error) {
	if thresholdRatio.IsNegative() || thresholdRatio.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("threshold ratio must be within [0,1], got %s", thresholdRatio)
	}
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}

	m := &Manager{
		transport: transport,
		session:   sess,
		creds:     creds,
		ratio:     thresholdRatio,
		timeouts:  timeouts,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
	m.setState(domain.StateUnauthenticated)
	return m, nil
}

// WithTracer replaces the tracer taken from the global provider
func (m *Manager) WithTracer(t trace.Tracer) *Manager {
	m.tracer = t
	return m
}

// State returns the current lifecycle state
func (m *Manager) State() domain.LifecycleState {
	return domain.LifecycleState(m.state.Load())
}

// StateName returns the current state as text
func (m *Manager) StateName() string {
	return m.State().String()
}

// IsAuthenticated reports whether the manager is AUTHENTICATED
func (m *Manager) IsAuthenticated() bool {
	return m.State() == domain.StateAuthenticated
}

// Threshold returns floor(lease × ratio) in seconds
func (m *Manager) Threshold(leaseSeconds int64) int64 {
	return decimal.NewFromInt(leaseSeconds).Mul(m.ratio).Floor().IntPart()
}

// Authenticate performs a full AppRole login
func (m *Manager) Authenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.authenticateLocked(ctx)
}

// Evaluate runs one pass of the state machine:
//
//	no token              -> authenticate
//	remaining == 0        -> EXPIRED, authenticate
//	remaining <= threshold -> renew if renewable, else (or on failure) authenticate
//	otherwise             -> no action
func (m *Manager) Evaluate(ctx context.Context) domain.EvaluationOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.session.Snapshot()
	if !snap.Authenticated() {
		m.logger.Info("No session token - authenticating")
		return m.reauthenticate(ctx, domain.EvaluationOutcome{}, nil)
	}
	// A failed login leaves the last token in the session but the manager unauthenticated
	if m.State() == domain.StateUnauthenticated {
		m.logger.Info("Last authentication failed - authenticating",
			zap.String("token", snap.MaskedToken()),
		)
		return m.reauthenticate(ctx, domain.EvaluationOutcome{
			RemainingTTL: snap.RemainingTTL(m.session.Now()),
			Threshold:    m.Threshold(snap.LeaseSeconds),
		}, nil)
	}

	remaining := snap.RemainingTTL(m.session.Now())
	threshold := m.Threshold(snap.LeaseSeconds)
	outcome := domain.EvaluationOutcome{
		RemainingTTL: remaining,
		Threshold:    threshold,
	}
	observability.UpdateTokenRemainingTTL(remaining)

	// Expired takes priority over the threshold check: renewal at TTL 0 is meaningless
	if remaining <= 0 {
		m.setState(domain.StateExpired)
		m.logger.Warn("Session token expired - re-authenticating",
			zap.String("token", snap.MaskedToken()),
			zap.Int64("lease_seconds", snap.LeaseSeconds),
			zap.Time("expired_at", snap.ExpiresAt()),
		)
		return m.reauthenticate(ctx, outcome, nil)
	}

	if remaining > threshold {
		m.logger.Debug("Session token healthy",
			zap.Int64("remaining_ttl", remaining),
			zap.Int64("threshold", threshold),
		)
		outcome.Action = domain.ActionNone
		outcome.State = m.State()
		return outcome
	}

	if !snap.Renewable {
		observability.RecordTokenRenewal(observability.ResultNotRenewable)
		m.logger.Info("Session token below renewal threshold and not renewable - re-authenticating",
			zap.Int64("remaining_ttl", remaining),
			zap.Int64("threshold", threshold),
		)
		return m.reauthenticate(ctx, outcome, nil)
	}

	renewErr := m.renewLocked(ctx, snap)
	if renewErr == nil {
		outcome.Action = domain.ActionRenewed
		outcome.State = m.State()
		return outcome
	}

	return m.reauthenticate(ctx, outcome, renewErr)
}

// reauthenticate finishes an evaluation with a login attempt. A prior renewal error
// is kept on the outcome when the login itself succeeds.
func (m *Manager) reauthenticate(ctx context.Context, outcome domain.EvaluationOutcome, prior error) domain.EvaluationOutcome {
	if err := m.authenticateLocked(ctx); err != nil {
		outcome.Action = domain.ActionAuthFailed
		outcome.Err = errors.Join(prior, err)
	} else {
		outcome.Action = domain.ActionReauthenticated
		outcome.Err = prior
	}
	outcome.State = m.State()
	return outcome
}

// authenticateLocked logs in and replaces the session. A failed login leaves the session
// untouched and the manager UNAUTHENTICATED. Callers hold mu.
func (m *Manager) authenticateLocked(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "lifecycle.authenticate")
	defer span.End()

	callCtx, cancel := m.timeouts.BackendCallContext(ctx)
	defer cancel()

	startTime := time.Now()
	result, err := m.transport.Login(callCtx, m.creds.RoleID, m.creds.SecretID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "approle login failed")
		m.setState(domain.StateUnauthenticated)
		observability.RecordAuthAttempt(resultLabel(err))
		m.logger.Error("AppRole authentication failed",
			zap.Int("http_status", domain.StatusCode(err)),
			zap.Bool("transport_error", domain.IsTransportError(err)),
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Error(err),
		)
		return err
	}

	snap := m.session.ApplyAuth(result.ClientToken, result.LeaseDurationSeconds, result.Renewable)
	span.SetAttributes(
		attribute.Int64("token.lease_seconds", snap.LeaseSeconds),
		attribute.Bool("token.renewable", snap.Renewable),
	)
	m.setState(domain.StateAuthenticated)
	observability.RecordAuthAttempt(observability.ResultSuccess)
	observability.UpdateTokenRemainingTTL(snap.LeaseSeconds)

	m.logger.Info("AppRole authentication succeeded",
		zap.String("token", snap.MaskedToken()),
		zap.Int64("lease_seconds", snap.LeaseSeconds),
		zap.Bool("renewable", snap.Renewable),
		zap.Time("expires_at", snap.ExpiresAt()),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return nil
}

// renewLocked extends the current token in place. Callers hold mu.
func (m *Manager) renewLocked(ctx context.Context, snap session.Snapshot) error {
	ctx, span := m.tracer.Start(ctx, "lifecycle.renew")
	defer span.End()

	callCtx, cancel := m.timeouts.BackendCallContext(ctx)
	defer cancel()

	startTime := time.Now()
	result, err := m.transport.Renew(callCtx, snap.Token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token renewal failed")
		observability.RecordTokenRenewal(resultLabel(err))
		m.logger.Warn("Token renewal failed - falling back to authentication",
			zap.String("token", snap.MaskedToken()),
			zap.Int("http_status", domain.StatusCode(err)),
			zap.Bool("transport_error", domain.IsTransportError(err)),
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Error(err),
		)
		return err
	}

	renewed, ok := m.session.ApplyRenewal(result.LeaseDurationSeconds)
	if !ok {
		err := domain.NewRenewalFailure(0, "", "no session token to renew")
		span.SetStatus(codes.Error, err.Error())
		observability.RecordTokenRenewal(observability.ResultFailure)
		return err
	}

	observability.RecordTokenRenewal(observability.ResultSuccess)
	observability.UpdateTokenRemainingTTL(renewed.LeaseSeconds)
	m.logger.Info("Token renewed",
		zap.String("token", renewed.MaskedToken()),
		zap.Int64("lease_seconds", renewed.LeaseSeconds),
		zap.Time("expires_at", renewed.ExpiresAt()),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return nil
}

func (m *Manager) setState(s domain.LifecycleState) {
	m.state.Store(int32(s))
	observability.UpdateLifecycleState(s.String(), domain.LifecycleStateNames())
}

// resultLabel maps a call error to its metric label
func resultLabel(err error) string {
	switch {
	case err == nil:
		return observability.ResultSuccess
	case domain.IsTransportError(err):
		return observability.ResultTransportError
	default:
		return observability.ResultFailure
	}
}

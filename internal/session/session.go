package session

import (
	"sync"
	"time"

	"github.com/kevin07696/vault-secret-agent/pkg/timeutil"
)

// Snapshot is an immutable view of the session. Readers always get the four fields
// from a single write.
type Snapshot struct {
	Token        string
	IssuedAt     time.Time
	LeaseSeconds int64
	Renewable    bool
}

// Authenticated reports whether the snapshot carries a token
func (s Snapshot) Authenticated() bool {
	return s.Token != ""
}

// RemainingTTL returns max(0, lease - elapsed) in whole seconds.
// A clock that moved backwards counts as zero elapsed time.
func (s Snapshot) RemainingTTL(now time.Time) int64 {
	if !s.Authenticated() {
		return 0
	}
	elapsed := timeutil.UnixSeconds(now) - timeutil.UnixSeconds(s.IssuedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := s.LeaseSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExpiresAt is the absolute time the lease runs out
func (s Snapshot) ExpiresAt() time.Time {
	if !s.Authenticated() {
		return time.Time{}
	}
	return s.IssuedAt.Add(time.Duration(s.LeaseSeconds) * time.Second)
}

// MaskedToken returns a loggable prefix of the token
func (s Snapshot) MaskedToken() string {
	return MaskToken(s.Token)
}

// MaskToken keeps at most the first 10 characters of a token
func MaskToken(token string) string {
	const visible = 10
	if token == "" {
		return ""
	}
	if len(token) <= visible/2 {
		return "****"
	}
	if len(token) <= visible {
		return token[:len(token)/2] + "..."
	}
	return token[:visible] + "..."
}

// Session holds the single token the agent is authenticated with.
// Mutations replace the snapshot wholesale under the lock.
type Session struct {
	mu    sync.RWMutex
	snap  Snapshot
	clock timeutil.Clock
}

// New creates an empty (unauthenticated) session
func New(clock timeutil.Clock) *Session {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Session{clock: clock}
}

// Snapshot returns the current session state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// RemainingTTL returns the non-negative number of seconds left on the lease
func (s *Session) RemainingTTL() int64 {
	return s.Snapshot().RemainingTTL(s.clock.Now())
}

// IsAuthenticated is true iff a token is held
func (s *Session) IsAuthenticated() bool {
	return s.Snapshot().Authenticated()
}

// Now exposes the session clock so callers evaluate TTL on the same time source
func (s *Session) Now() time.Time {
	return s.clock.Now()
}

// ApplyAuth replaces the whole session after a successful login
func (s *Session) ApplyAuth(token string, leaseSeconds int64, renewable bool) Snapshot {
	if leaseSeconds < 0 {
		leaseSeconds = 0
	}
	next := Snapshot{
		Token:        token,
		IssuedAt:     s.clock.Now(),
		LeaseSeconds: leaseSeconds,
		Renewable:    renewable,
	}

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()
	return next
}

// ApplyRenewal restarts the lease for the current token. Token and renewability are
// unchanged. It is a no-op on an empty session.
func (s *Session) ApplyRenewal(leaseSeconds int64) (Snapshot, bool) {
	if leaseSeconds < 0 {
		leaseSeconds = 0
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.snap.Authenticated() {
		return s.snap, false
	}
	next := s.snap
	next.IssuedAt = now
	next.LeaseSeconds = leaseSeconds
	s.snap = next
	return next, true
}

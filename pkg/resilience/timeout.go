package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the agent's timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//   Shutdown (30s)
//     ↓
//   Refresh Tick (max(interval, 3 × backend call))
//     ↓
//   Backend Call (10s - login, renew-self, KV read)
//     ↓
//   Mirror Write (2s)
//
// Diagnostics requests are independent of the tick and get their own short budget.
type TimeoutConfig struct {
	// Process
	Shutdown time.Duration // Graceful shutdown budget (default: 30s)

	// Scheduler
	Tick time.Duration // One evaluate-then-sweep pass (default: 2 minutes)

	// External calls (adapters)
	BackendCall time.Duration // Single Vault request (default: 10s)
	MirrorWrite time.Duration // Single Redis mirror write (default: 2s)

	// Diagnostics HTTP handlers
	Diagnostics time.Duration // default: 5s
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Shutdown:    30 * time.Second,
		Tick:        2 * time.Minute,
		BackendCall: 10 * time.Second,
		MirrorWrite: 2 * time.Second,
		Diagnostics: 5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Shutdown:    5 * time.Second,
		Tick:        4 * time.Second,
		BackendCall: 1 * time.Second,
		MirrorWrite: 500 * time.Millisecond,
		Diagnostics: 1 * time.Second,
	}
}

// ForSchedule derives the hierarchy from the configured request timeout and refresh interval.
// A tick may outlive one interval since late ticks are dropped, never overlapped.
func ForSchedule(requestTimeout, interval time.Duration) *TimeoutConfig {
	tc := DefaultTimeoutConfig()
	if requestTimeout > 0 {
		tc.BackendCall = requestTimeout
	}
	tc.Tick = interval
	if floor := 3 * tc.BackendCall; tc.Tick < floor {
		tc.Tick = floor
	}
	if tc.MirrorWrite > tc.BackendCall {
		tc.MirrorWrite = tc.BackendCall
	}
	return tc
}

// ShutdownContext creates a context for graceful shutdown
func (tc *TimeoutConfig) ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Shutdown)
}

// TickContext creates a context for one scheduler tick
func (tc *TimeoutConfig) TickContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Tick)
}

// BackendCallContext creates a context for a single Vault request
func (tc *TimeoutConfig) BackendCallContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.BackendCall)
}

// MirrorContext creates a context for a single mirror write
func (tc *TimeoutConfig) MirrorContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.MirrorWrite)
}

// DiagnosticsContext creates a context for diagnostics handlers
func (tc *TimeoutConfig) DiagnosticsContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Diagnostics)
}

package domain

// LifecycleState is the token lifecycle state machine position
type LifecycleState int32

const (
	StateUnauthenticated LifecycleState = iota
	StateAuthenticated
	// StateExpired is only ever held for the duration of one evaluation, between
	// noticing a zero TTL and the re-authentication attempt
	StateExpired
)

// String returns the state name used in logs, metrics and diagnostics
func (s LifecycleState) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// LifecycleStateNames lists every state name, for one-hot metrics
func LifecycleStateNames() []string {
	return []string{
		StateUnauthenticated.String(),
		StateAuthenticated.String(),
		StateExpired.String(),
	}
}

// LifecycleAction is what one evaluation did
type LifecycleAction string

const (
	ActionNone            LifecycleAction = "none"
	ActionRenewed         LifecycleAction = "renewed"
	ActionReauthenticated LifecycleAction = "reauthenticated"
	ActionAuthFailed      LifecycleAction = "auth_failed"
)

// EvaluationOutcome reports one lifecycle evaluation
type EvaluationOutcome struct {
	Action       LifecycleAction
	State        LifecycleState // state after the evaluation
	RemainingTTL int64          // seconds left when the evaluation started
	Threshold    int64          // renewal threshold in seconds for the lease at that time
	Err          error          // last failure seen, nil on success or no-op
}

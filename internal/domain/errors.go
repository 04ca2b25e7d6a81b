package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Backend call failures
	ErrorCodeAuthFailure      ErrorCode = "AUTH_FAILURE"
	ErrorCodeRenewalFailure   ErrorCode = "RENEWAL_FAILURE"
	ErrorCodeFetchFailure     ErrorCode = "FETCH_FAILURE"
	ErrorCodeTransportFailure ErrorCode = "TRANSPORT_FAILURE"

	// Startup failures
	ErrorCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// Operation identifies which backend call produced a failure
type Operation string

const (
	OpLogin Operation = "login"
	OpRenew Operation = "renew"
	OpRead  Operation = "read"
)

// code returns the failure kind a transport error on this operation is treated as
func (o Operation) code() ErrorCode {
	switch o {
	case OpLogin:
		return ErrorCodeAuthFailure
	case OpRenew:
		return ErrorCodeRenewalFailure
	case OpRead:
		return ErrorCodeFetchFailure
	default:
		return ""
	}
}

// AgentError is a structured failure from one of the backend adapters or from startup.
// StatusCode is zero when no HTTP response was received.
type AgentError struct {
	Err        error
	Code       ErrorCode
	Op         Operation
	Message    string
	Path       string
	Body       string
	StatusCode int
}

// Error implements the error interface
func (e *AgentError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (http_status=%d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AgentError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the same code. A transport failure also matches the
// failure kind of the operation it interrupted.
func (e *AgentError) Is(target error) bool {
	t, ok := target.(*AgentError)
	if !ok || t.Code == "" {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return e.Code == ErrorCodeTransportFailure && e.Op.code() == t.Code
}

// Sentinels for errors.Is
var (
	ErrAuthFailure      = &AgentError{Code: ErrorCodeAuthFailure, Message: "authentication failed"}
	ErrRenewalFailure   = &AgentError{Code: ErrorCodeRenewalFailure, Message: "token renewal failed"}
	ErrFetchFailure     = &AgentError{Code: ErrorCodeFetchFailure, Message: "secret fetch failed"}
	ErrTransportFailure = &AgentError{Code: ErrorCodeTransportFailure, Message: "transport failure"}
	ErrConfigInvalid    = &AgentError{Code: ErrorCodeConfigInvalid, Message: "invalid configuration"}
)

// NewAuthFailure reports a rejected or malformed AppRole login
func NewAuthFailure(statusCode int, body, message string) *AgentError {
	return &AgentError{
		Code:       ErrorCodeAuthFailure,
		Op:         OpLogin,
		Message:    message,
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewRenewalFailure reports a rejected or malformed token renewal
func NewRenewalFailure(statusCode int, body, message string) *AgentError {
	return &AgentError{
		Code:       ErrorCodeRenewalFailure,
		Op:         OpRenew,
		Message:    message,
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewFetchFailure reports a rejected or malformed secret read for one path
func NewFetchFailure(path string, statusCode int, message string) *AgentError {
	return &AgentError{
		Code:       ErrorCodeFetchFailure,
		Op:         OpRead,
		Message:    message,
		Path:       path,
		StatusCode: statusCode,
	}
}

// NewTransportFailure wraps a network-level error raised during op
func NewTransportFailure(op Operation, path string, err error) *AgentError {
	return &AgentError{
		Code:    ErrorCodeTransportFailure,
		Op:      op,
		Message: fmt.Sprintf("%s request did not complete", op),
		Path:    path,
		Err:     err,
	}
}

// WrapConfigError marks err as a startup configuration problem
func WrapConfigError(err error) *AgentError {
	return &AgentError{
		Code:    ErrorCodeConfigInvalid,
		Message: "configuration rejected",
		Err:     err,
	}
}

// GetErrorCode extracts the error code from an error, returns empty string if not an AgentError
func GetErrorCode(err error) ErrorCode {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Code
	}
	return ""
}

// StatusCode returns the HTTP status carried by err, or 0 when there was none
func StatusCode(err error) int {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.StatusCode
	}
	return 0
}

// IsTransportError reports whether err never produced an HTTP response
func IsTransportError(err error) bool {
	return GetErrorCode(err) == ErrorCodeTransportFailure
}

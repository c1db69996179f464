package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the authentication core can surface.
type ErrorKind int

const (
	// ErrValidation marks malformed input caught before any network call.
	ErrValidation ErrorKind = iota
	// ErrGatewayRejection marks a request the identity provider declined.
	ErrGatewayRejection
	// ErrTransportFailure marks an absent or unreachable collaborator.
	ErrTransportFailure
	// ErrInvalidState marks an operation invoked in a state that does not
	// permit it.
	ErrInvalidState
)

func (k ErrorKind) String() string {
	switch k {
	case ErrValidation:
		return "validation_error"
	case ErrGatewayRejection:
		return "gateway_rejection"
	case ErrTransportFailure:
		return "transport_failure"
	case ErrInvalidState:
		return "invalid_state_transition"
	default:
		return "unknown"
	}
}

// Error is the uniform failure type crossing the controller boundary. It
// carries the taxonomy kind plus the original provider message, and wraps an
// underlying cause when one exists.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can compare against the kind sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Kind sentinels for errors.Is checks.
var (
	ErrValidationSentinel = &Error{Kind: ErrValidation}
	ErrRejectionSentinel  = &Error{Kind: ErrGatewayRejection}
	ErrTransportSentinel  = &Error{Kind: ErrTransportFailure}
	ErrStateSentinel      = &Error{Kind: ErrInvalidState}
)

// Validationf builds a validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// Rejection builds a gateway rejection carrying the provider's message.
func Rejection(message string, cause error) *Error {
	return &Error{Kind: ErrGatewayRejection, Message: message, Err: cause}
}

// Transport builds a transport failure.
func Transport(message string, cause error) *Error {
	return &Error{Kind: ErrTransportFailure, Message: message, Err: cause}
}

// InvalidStatef builds an invalid state transition error.
func InvalidStatef(format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidState, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the taxonomy kind from err, reporting ok=false for errors
// that did not originate in the authentication core.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}

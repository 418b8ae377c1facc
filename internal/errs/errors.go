// Package errs provides the unified error type used across imgbed.
//
// Every subsystem (config, index, filestore, botapi, storage, …) wraps its
// native errors into *errs.Error before returning them to callers. Callers use
// the Is* predicates to handle errors without importing transport-specific
// packages.
//
// Usage:
//
//	// In a transport, wrap native errors:
//	return errs.Wrap(errs.ErrKindBackendRequestFailed, "put object failed", err)
//
//	// In a caller, check the error kind:
//	if errs.IsIndexReadFailure(err) {
//	    // do not touch the index again
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing backend-specific codes.
// Every driver maps its native failures to one of these kinds, giving callers
// a single consistent API.
type ErrKind int

const (
	ErrKindUnknown              ErrKind = iota
	ErrKindConfigUnavailable            // missing or invalid configuration document
	ErrKindDriverNotConfigured          // required credentials absent, or no drivers at all
	ErrKindIndexReadFailure             // corrupt or unreadable metadata document
	ErrKindIndexWriteRefused            // circuit breaker refused a write
	ErrKindBackendUnavailable           // connectivity / auth probe failed
	ErrKindBackendRequestFailed         // remote call failed after retries
	ErrKindNotFound                     // short id or storage key does not resolve
	ErrKindInvalidInput                 // bad arguments from the caller
	ErrKindTimeout                      // context deadline / cancellation
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfigUnavailable:
		return "config_unavailable"
	case ErrKindDriverNotConfigured:
		return "driver_not_configured"
	case ErrKindIndexReadFailure:
		return "index_read_failure"
	case ErrKindIndexWriteRefused:
		return "index_write_refused"
	case ErrKindBackendUnavailable:
		return "backend_unavailable"
	case ErrKindBackendRequestFailed:
		return "backend_request_failed"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all imgbed subsystems.
// Drivers produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original transport-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsConfigUnavailable reports whether err is a missing or invalid config.
func IsConfigUnavailable(err error) bool {
	return KindOf(err) == ErrKindConfigUnavailable
}

// IsDriverNotConfigured reports whether err is caused by absent credentials
// or an empty driver registry.
func IsDriverNotConfigured(err error) bool {
	return KindOf(err) == ErrKindDriverNotConfigured
}

// IsIndexReadFailure reports whether the metadata index could not be read.
func IsIndexReadFailure(err error) bool {
	return KindOf(err) == ErrKindIndexReadFailure
}

// IsIndexWriteRefused reports whether the index circuit breaker refused a write.
func IsIndexWriteRefused(err error) bool {
	return KindOf(err) == ErrKindIndexWriteRefused
}

// IsBackendUnavailable reports whether err is a connectivity or auth failure.
func IsBackendUnavailable(err error) bool {
	return KindOf(err) == ErrKindBackendUnavailable
}

// IsBackendRequestFailed reports whether a remote call failed after retries.
func IsBackendRequestFailed(err error) bool {
	return KindOf(err) == ErrKindBackendRequestFailed
}

// IsNotFound reports whether err represents a "not found" result
// (unknown short id, missing object, …).
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// --- Structured failures ---

// Failure is the user-visible shape of a failed operation: a stable kind
// string plus a message that never leaks the raw cause.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Describe converts err into a Failure. Errors outside the taxonomy are
// reported as "unknown" with a generic message.
func Describe(err error) Failure {
	if err == nil {
		return Failure{}
	}
	var e *Error
	if errors.As(err, &e) {
		return Failure{Kind: e.Kind.String(), Message: e.Message}
	}
	return Failure{Kind: ErrKindUnknown.String(), Message: "internal error"}
}

// Package errors provides centralized error definitions and error handling
// utilities for the adtflow codebase. It defines domain-specific errors,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures from specific subsystems:
//   - StorageError: session/lock file I/O failures
//   - TransportError: HTTP-level failures (network, non-2xx with no structured body)
//   - ValidationError: structured error entries embedded in a 2xx response
//   - LockConflictError: a remote or registry lock is already held
//   - RecoveryError: session or lock entry missing when recovery is attempted
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewStorageError("failed to write session file", cause).WithPath(path)
//	err := errors.NewTransportError("activation request failed", cause).WithStatus(502, "Bad Gateway")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSessionNotFound) { ... }
//
//	var tErr *errors.TransportError
//	if errors.As(err, &tErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityWarning is for conditions that might indicate a problem but
	// do not abort a lifecycle run (e.g. warning-typed check entries).
	SeverityWarning Severity = iota
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that break crash-recovery guarantees
	// and require immediate attention (e.g. a lost registry write).
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Session-related sentinel errors
var (
	// ErrSessionNotFound indicates that no persisted session exists for an id.
	ErrSessionNotFound = New("session not found")
	// ErrSessionCorrupted indicates that persisted session data cannot be parsed.
	ErrSessionCorrupted = New("session data corrupted")
)

// Lock-related sentinel errors
var (
	// ErrLockNotFound indicates that no registry entry exists for an object.
	ErrLockNotFound = New("lock entry not found")
	// ErrLockHeld indicates that an object is already locked by another session.
	ErrLockHeld = New("object already locked")
	// ErrLockHandleMissing indicates a locked context with no stored handle.
	ErrLockHandleMissing = New("lock handle missing")
)

// Lifecycle-related sentinel errors
var (
	// ErrRunSkipped indicates that a run was skipped due to missing
	// configuration or dependencies, as opposed to failing.
	ErrRunSkipped = New("run skipped")
	// ErrCheckExhausted indicates that the active-state check failed on
	// every attempt within the retry budget.
	ErrCheckExhausted = New("check retries exhausted")
)

// Recovery-related sentinel errors
var (
	// ErrNothingToRecover indicates that no session or lock state exists
	// for the requested recovery target.
	ErrNothingToRecover = New("nothing to recover")
)

// -----------------------------------------------------------------------------
// StorageError
// -----------------------------------------------------------------------------

// StorageError represents a session or lock file I/O failure. Storage
// failures always surface: a swallowed write failure would leave a
// remotely-locked object untracked.
type StorageError struct {
	Message string
	Path    string
	Cause   error
}

// NewStorageError creates a new StorageError wrapping the given cause.
func NewStorageError(message string, cause error) *StorageError {
	return &StorageError{
		Message: message,
		Cause:   cause,
	}
}

// WithPath attaches the file path involved in the failure.
func (e *StorageError) WithPath(path string) *StorageError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *StorageError) Error() string {
	var b strings.Builder
	b.WriteString("storage: ")
	b.WriteString(e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (path: %s)", e.Path)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error { return e.Cause }

// Severity returns the error's severity.
func (e *StorageError) Severity() Severity { return SeverityCritical }

// -----------------------------------------------------------------------------
// TransportError
// -----------------------------------------------------------------------------

// TransportError represents an HTTP-level failure: a network error, or a
// non-2xx response that carried no structured error payload.
type TransportError struct {
	Message    string
	StatusCode int
	StatusText string
	Cause      error
}

// NewTransportError creates a new TransportError wrapping the given cause.
func NewTransportError(message string, cause error) *TransportError {
	return &TransportError{Message: message, Cause: cause}
}

// WithStatus attaches the HTTP status code and status text.
func (e *TransportError) WithStatus(code int, text string) *TransportError {
	e.StatusCode = code
	e.StatusText = text
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("transport: ")
	b.WriteString(e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status: %d %s)", e.StatusCode, e.StatusText)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Cause }

// Severity returns the error's severity.
func (e *TransportError) Severity() Severity { return SeverityError }

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// ValidationError represents a business-level failure reported inside a
// successful (2xx) transport response: the payload carried one or more
// error-typed entries.
type ValidationError struct {
	Message  string
	Object   string   // "<type> <name>", when known
	Entries  []string // texts of the error-typed entries
	Warnings []string // texts of warning-typed entries, informational
}

// NewValidationError creates a new ValidationError for the given entry texts.
func NewValidationError(message string, entries []string) *ValidationError {
	return &ValidationError{Message: message, Entries: entries}
}

// WithObject attaches the object identity the validation ran against.
func (e *ValidationError) WithObject(objectType, objectName string) *ValidationError {
	e.Object = objectType + " " + objectName
	return e
}

// WithWarnings attaches warning-typed entry texts for reporting.
func (e *ValidationError) WithWarnings(warnings []string) *ValidationError {
	e.Warnings = warnings
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation: ")
	b.WriteString(e.Message)
	if e.Object != "" {
		fmt.Fprintf(&b, " (object: %s)", e.Object)
	}
	if len(e.Entries) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Entries, "; "))
	}
	return b.String()
}

// Severity returns the error's severity.
func (e *ValidationError) Severity() Severity { return SeverityError }

// -----------------------------------------------------------------------------
// LockConflictError
// -----------------------------------------------------------------------------

// LockConflictError indicates that a lock is already held, either remotely
// or in the local registry by a different session.
type LockConflictError struct {
	ObjectType string
	ObjectName string
	HeldBy     string // session id or remote user, when known
	Cause      error
}

// NewLockConflictError creates a new LockConflictError for the given object.
func NewLockConflictError(objectType, objectName string) *LockConflictError {
	return &LockConflictError{ObjectType: objectType, ObjectName: objectName}
}

// WithHolder attaches the identity of the current lock holder.
func (e *LockConflictError) WithHolder(holder string) *LockConflictError {
	e.HeldBy = holder
	return e
}

// WithCause adds a cause to the error.
func (e *LockConflictError) WithCause(cause error) *LockConflictError {
	e.Cause = cause
	return e
}

// Error returns the formatted error message.
func (e *LockConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lock conflict: %s %s", e.ObjectType, e.ObjectName)
	if e.HeldBy != "" {
		fmt.Fprintf(&b, " (held by: %s)", e.HeldBy)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *LockConflictError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrLockHeld, so callers can use
// errors.Is(err, errors.ErrLockHeld) without type assertions.
func (e *LockConflictError) Is(target error) bool { return target == ErrLockHeld }

// Severity returns the error's severity.
func (e *LockConflictError) Severity() Severity { return SeverityError }

// -----------------------------------------------------------------------------
// RecoveryError
// -----------------------------------------------------------------------------

// RecoveryError indicates that crash recovery could not proceed: the
// persisted session or the registry lock entry required by the coordinator
// was missing or unusable. Recovery errors always surface; the coordinator
// never guesses a lock handle.
type RecoveryError struct {
	Message   string
	SessionID string
	Cause     error
}

// NewRecoveryError creates a new RecoveryError wrapping the given cause.
func NewRecoveryError(message string, cause error) *RecoveryError {
	return &RecoveryError{Message: message, Cause: cause}
}

// WithSessionID attaches the session the recovery targeted.
func (e *RecoveryError) WithSessionID(id string) *RecoveryError {
	e.SessionID = id
	return e
}

// Error returns the formatted error message.
func (e *RecoveryError) Error() string {
	var b strings.Builder
	b.WriteString("recovery: ")
	b.WriteString(e.Message)
	if e.SessionID != "" {
		fmt.Fprintf(&b, " (session: %s)", e.SessionID)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *RecoveryError) Unwrap() error { return e.Cause }

// Severity returns the error's severity.
func (e *RecoveryError) Severity() Severity { return SeverityCritical }

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// severer is implemented by all typed errors in this package.
type severer interface {
	Severity() Severity
}

// SeverityOf returns the severity of an error, defaulting to SeverityError
// for errors that do not carry one.
func SeverityOf(err error) Severity {
	var s severer
	if As(err, &s) {
		return s.Severity()
	}
	return SeverityError
}

// IsRetryable reports whether the error represents a transient condition
// that may succeed on retry. Transport failures with 5xx or no status are
// retryable; validation and storage failures are not.
func IsRetryable(err error) bool {
	var tErr *TransportError
	if As(err, &tErr) {
		return tErr.StatusCode == 0 || tErr.StatusCode >= 500
	}
	return false
}

// IsFatal reports whether the error must abort a lifecycle run and trigger
// compensating cleanup. Everything except warning-severity errors is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return SeverityOf(err) >= SeverityError
}

// StatusText extracts the transport status text from an error chain, or ""
// if none is attached. Used to enrich lifecycle failures for reporting.
func StatusText(err error) string {
	var tErr *TransportError
	if As(err, &tErr) && tErr.StatusCode != 0 {
		return fmt.Sprintf("%d %s", tErr.StatusCode, tErr.StatusText)
	}
	return ""
}

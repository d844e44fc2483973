package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error so callers can branch on it without string matching.
type ErrorKind string

const (
	// KindNotFound indicates an unknown provider, catalog item or spec type.
	KindNotFound ErrorKind = "not_found"

	// KindInvalidArgument indicates bad caller input.
	// Examples: empty plan text, a deferred call target that evaluates to nil,
	// a call naming a function with no matching handler.
	KindInvalidArgument ErrorKind = "invalid_argument"

	// KindConfiguration indicates a bootstrap configuration problem.
	// Raised eagerly while building the management context, never on first use.
	KindConfiguration ErrorKind = "configuration"

	// KindIllegalState indicates an operation that cannot proceed given the
	// current state of the system (e.g. no way to build a spec for an item).
	KindIllegalState ErrorKind = "illegal_state"

	// KindUnsupported indicates an operation the component refuses to perform.
	KindUnsupported ErrorKind = "unsupported"

	// KindInvocation indicates that a dispatched function returned an error.
	KindInvocation ErrorKind = "invocation"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Subject is the catalog item, provider or expression the error is about.
	Subject string `json:"subject,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Subject != "" && e.Operation != "" {
		msg = fmt.Sprintf("%s (subject=%s, operation=%s)", msg, e.Subject, e.Operation)
	} else if e.Subject != "" {
		msg = fmt.Sprintf("%s (subject=%s)", msg, e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
// A target without a code matches any error of the same kind.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

func newError(kind ErrorKind, message string, err error) *EngineError {
	return &EngineError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *EngineError {
	return newError(KindNotFound, message, err).WithCode(ErrCodeNotFound)
}

// NewInvalidArgumentError creates a new invalid-argument error.
func NewInvalidArgumentError(message string, err error) *EngineError {
	return newError(KindInvalidArgument, message, err).WithCode(ErrCodeValidation)
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *EngineError {
	return newError(KindConfiguration, message, err).WithCode(ErrCodeConfiguration)
}

// NewIllegalStateError creates a new illegal-state error.
func NewIllegalStateError(message string, err error) *EngineError {
	return newError(KindIllegalState, message, err).WithCode(ErrCodeIllegalState)
}

// NewUnsupportedError creates a new unsupported-operation error.
func NewUnsupportedError(message string, err error) *EngineError {
	return newError(KindUnsupported, message, err).WithCode(ErrCodeUnsupported)
}

// NewInvocationError creates a new invocation error wrapping a handler failure.
func NewInvocationError(message string, err error) *EngineError {
	return newError(KindInvocation, message, err).WithCode(ErrCodeInvocation)
}

// WithSubject adds subject context to an error.
func (e *EngineError) WithSubject(subject string) *EngineError {
	e.Subject = subject
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasKind(err error, kind ErrorKind) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	return hasKind(err, KindNotFound)
}

// IsInvalidArgument returns true if the error is classified as an invalid argument.
func IsInvalidArgument(err error) bool {
	return hasKind(err, KindInvalidArgument)
}

// IsConfiguration returns true if the error is classified as a configuration error.
func IsConfiguration(err error) bool {
	return hasKind(err, KindConfiguration)
}

// IsIllegalState returns true if the error is classified as illegal state.
func IsIllegalState(err error) bool {
	return hasKind(err, KindIllegalState)
}

// IsUnsupported returns true if the error is classified as unsupported.
func IsUnsupported(err error) bool {
	return hasKind(err, KindUnsupported)
}

// IsInvocation returns true if the error wraps a dispatched function failure.
func IsInvocation(err error) bool {
	return hasKind(err, KindInvocation)
}

// FatalError marks an unrecoverable failure. It is never wrapped by the
// dispatcher or the scheduler; panics carrying it are re-raised unchanged.
type FatalError struct {
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Err == nil {
		return "fatal error"
	}
	return "fatal: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if err is or wraps a FatalError.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// Common error codes.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeIllegalState  = "ILLEGAL_STATE"
	ErrCodeUnsupported   = "UNSUPPORTED"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeInvocation    = "INVOCATION_FAILED"
	ErrCodeNoSuchFunc    = "NO_SUCH_FUNCTION"
	ErrCodeNullTarget    = "NULL_TARGET"
	ErrCodeResolveDepth  = "RESOLVE_DEPTH_EXCEEDED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain errors surfaced to callers.
type ErrorKind string

const (
	// KindNotFound covers unknown tool ids and missing WASM files.
	KindNotFound ErrorKind = "not_found"
	// KindPermissionDenied covers refused capabilities and integrity or
	// signature mismatches.
	KindPermissionDenied ErrorKind = "permission_denied"
	// KindInvalidInput covers malformed JSON, bad ids, zero-valued
	// limits, and malformed allow-lists.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindTimeout covers epoch-deadline and outer-timeout expiry.
	KindTimeout ErrorKind = "timeout"
	// KindResourceExhausted covers a full scheduler, rate-limit hits,
	// and memory or fuel exhaustion.
	KindResourceExhausted ErrorKind = "resource_exhausted"
	// KindInternal covers engine, compiler, and infrastructure failures.
	KindInternal ErrorKind = "internal"
)

// KamiError is the domain error: a kind, a message, and optional
// diagnostic pairing (hint + concrete remediation).
type KamiError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// Hint explains the likely cause in one human-readable sentence.
	Hint string `json:"hint,omitempty"`
	// Fix is a concrete remediation the caller can apply.
	Fix string `json:"fix,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *KamiError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Kind, e.Message, e.Hint)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *KamiError) Unwrap() error { return e.cause }

// WithHint attaches a cause explanation.
func (e *KamiError) WithHint(hint string) *KamiError {
	e.Hint = hint
	return e
}

// WithFix attaches a concrete remediation string.
func (e *KamiError) WithFix(fix string) *KamiError {
	e.Fix = fix
	return e
}

// WithCause attaches the underlying error.
func (e *KamiError) WithCause(err error) *KamiError {
	e.cause = err
	return e
}

// NewError builds a KamiError of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *KamiError {
	return &KamiError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) *KamiError {
	return NewError(KindNotFound, format, args...)
}

// PermissionDenied builds a permission-denied error.
func PermissionDenied(format string, args ...any) *KamiError {
	return NewError(KindPermissionDenied, format, args...)
}

// InvalidInput builds an invalid-input error.
func InvalidInput(format string, args ...any) *KamiError {
	return NewError(KindInvalidInput, format, args...)
}

// Timeout builds a timeout error tagged with the exceeded budget.
func Timeout(timeoutMS uint64) *KamiError {
	return NewError(KindTimeout, "execution timed out after %dms", timeoutMS).
		WithFix(fmt.Sprintf("raise limits.max_execution_ms above %d or reduce the tool's workload", timeoutMS))
}

// ResourceExhausted builds a resource-exhausted error naming the resource.
func ResourceExhausted(resource string) *KamiError {
	return NewError(KindResourceExhausted, "resource exhausted: %s", resource)
}

// Internal builds an internal error.
func Internal(format string, args ...any) *KamiError {
	return NewError(KindInternal, format, args...)
}

// KindOf extracts the ErrorKind from any error chain. Unclassified errors
// report KindInternal.
func KindOf(err error) ErrorKind {
	var ke *KamiError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindInternal
}

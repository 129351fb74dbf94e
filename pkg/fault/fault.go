// Package fault implements the structured error contract for the trace
// core. Every error carries a stable namespaced code, a failure category,
// and a retriable flag so programmatic callers can branch without string
// matching.
package fault

import (
	"errors"
	"fmt"
)

// Category classifies a failure by its origin.
type Category string

const (
	// CategoryMechanical covers infrastructure and transient failures:
	// timeouts, upstream unavailability, bad response shapes.
	CategoryMechanical Category = "mechanical"
	// CategoryEthical covers policy and governance refusals.
	CategoryEthical Category = "ethical"
	// CategorySystem covers programming and contract violations.
	CategorySystem Category = "system"
)

// Stable error codes. Codes are part of the public contract and must not
// be renumbered.
const (
	CodeNotFound          = "NR-E001"
	CodeConflict          = "NR-E002"
	CodeInvalidTransition = "NR-E003"
	CodeInvalidInput      = "NR-E004"
	CodeStoreUnavailable  = "NR-E005"
	CodeExecutionFailed   = "NR-E006"
	CodeExecutionTimeout  = "NR-E007"
	CodeRetryExhausted    = "NR-E008"
	CodePolicyCooldown    = "NR-E009"
	CodeOrphanKilled      = "NR-E010"
	CodeInternal          = "NR-E011"
	CodeRateLimited       = "NR-E012"
)

// Error is the canonical error type surfaced by every subsystem.
type Error struct {
	Code      string         `json:"code"`
	Category  Category       `json:"category"`
	Retriable bool           `json:"retriable"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// WithDetail returns e with an added detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause returns e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// New constructs an Error with explicit classification.
func New(code string, category Category, retriable bool, format string, args ...any) *Error {
	return &Error{
		Code:      code,
		Category:  category,
		Retriable: retriable,
		Message:   fmt.Sprintf(format, args...),
	}
}

// NotFound reports a missing entity. Not retriable: the caller must
// correct the reference.
func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, CategorySystem, false, format, args...)
}

// Conflict reports an identifier collision or a lost optimistic-concurrency
// race.
func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, CategorySystem, false, format, args...)
}

// InvalidTransition reports an illegal lifecycle move. The current and
// attempted states ride along in Details for diagnostics.
func InvalidTransition(entityType, entityID, current, attempted string) *Error {
	e := New(CodeInvalidTransition, CategorySystem, false,
		"invalid state transition for %s %s: %q -> %q", entityType, entityID, current, attempted)
	e.Details = map[string]any{
		"entity_type":     entityType,
		"entity_id":       entityID,
		"current_state":   current,
		"attempted_state": attempted,
	}
	return e
}

// InvalidInput reports a malformed request.
func InvalidInput(format string, args ...any) *Error {
	return New(CodeInvalidInput, CategorySystem, false, format, args...)
}

// StoreUnavailable reports a durable-store failure. Retriable: the store
// may come back.
func StoreUnavailable(cause error) *Error {
	return New(CodeStoreUnavailable, CategoryMechanical, true, "durable store unavailable").WithCause(cause)
}

// Internal reports an unexpected failure without exposing its cause to
// callers.
func Internal(cause error) *Error {
	return New(CodeInternal, CategorySystem, false, "internal error").WithCause(cause)
}

// FromError extracts the *Error from err's chain, wrapping foreign errors
// as Internal.
func FromError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Internal(err)
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code string) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == code
}

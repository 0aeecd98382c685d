package model

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable failure class every surfaced error
// carries. The set is closed; adapters map codes to exit codes and the JSON
// error envelope.
type ErrorCode string

const (
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
	ErrStateConflict     ErrorCode = "STATE_CONFLICT"
	ErrLockFailed        ErrorCode = "LOCK_FAILED"
	ErrChecksumMismatch  ErrorCode = "CHECKSUM_MISMATCH"
	ErrCircularValidation ErrorCode = "CIRCULAR_VALIDATION"
	ErrCascadeThreshold  ErrorCode = "CASCADE_THRESHOLD_EXCEEDED"
	ErrLifecycleGate     ErrorCode = "LIFECYCLE_GATE_BLOCKED"
	ErrContextLimit      ErrorCode = "CONTEXT_LIMIT"
	ErrInternal          ErrorCode = "INTERNAL"
)

// exitCodes pins the binary-stable exit code per error class.
var exitCodes = map[ErrorCode]int{
	ErrInvalidInput:       2,
	ErrNotFound:           3,
	ErrValidation:         4,
	ErrStateConflict:      5,
	ErrLockFailed:         6,
	ErrChecksumMismatch:   7,
	ErrCircularValidation: 8,
	ErrCascadeThreshold:   9,
	ErrContextLimit:       50,
	ErrLifecycleGate:      80,
	ErrInternal:           1,
}

// ExitCode returns the process exit code for an error class.
func (c ErrorCode) ExitCode() int {
	if ec, ok := exitCodes[c]; ok {
		return ec
	}
	return 1
}

// Error is the typed failure that crosses the operation surface. It renders
// into the JSON error envelope unchanged.
type Error struct {
	Code         ErrorCode `json:"code"`
	Message      string    `json:"message"`
	Field        string    `json:"field,omitempty"`
	Fix          string    `json:"fix,omitempty"`
	Alternatives []string  `json:"alternatives,omitempty"`
	ExitCode     int       `json:"exitCode"`

	cause error
}

// NewError constructs a typed error.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: code.ExitCode(),
	}
}

// WithField attaches the offending field path.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithFix attaches a suggested remediation.
func (e *Error) WithFix(fix string) *Error {
	e.Fix = fix
	return e
}

// WithAlternatives attaches alternative actions.
func (e *Error) WithAlternatives(alts ...string) *Error {
	e.Alternatives = alts
	return e
}

// Wrap records the underlying cause for errors.Is/As chains.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// AsError extracts a typed *Error from any error chain, wrapping unknown
// failures as INTERNAL so the envelope is always well-formed.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(ErrInternal, "%s", err.Error()).Wrap(err)
}

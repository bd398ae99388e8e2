package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/hapsync/internal/script"
	"github.com/roach88/hapsync/internal/settings"
)

// Error represents a failure reported by the engine's host-facing API.
//
// None of these reach the tick path: every failure there degrades to "no
// actuation" instead.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// SessionID identifies the affected session, if any.
	SessionID string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeParse indicates a malformed action script.
	ErrCodeParse ErrorCode = "PARSE_ERROR"

	// ErrCodeCapabilityUnavailable indicates there is no actuation hardware.
	ErrCodeCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"

	// ErrCodeInvalidParameter indicates a rejected settings value.
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// ErrCodeNotReady indicates a start request without a script or
	// with vibration disabled.
	ErrCodeNotReady ErrorCode = "NOT_READY"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.SessionID != "" {
		msg = fmt.Sprintf("%s (session=%s)", msg, e.SessionID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsParseError returns true for malformed script input, whether reported
// by the engine or directly by the script package.
func IsParseError(err error) bool {
	return hasCode(err, ErrCodeParse) || script.IsParseError(err)
}

// IsInvalidParameter returns true for rejected settings values.
func IsInvalidParameter(err error) bool {
	return hasCode(err, ErrCodeInvalidParameter) || settings.IsParamError(err)
}

// IsCapabilityUnavailable returns true when there is no actuation hardware.
func IsCapabilityUnavailable(err error) bool {
	return hasCode(err, ErrCodeCapabilityUnavailable)
}

// IsNotReady returns true when a session could not start.
func IsNotReady(err error) bool {
	return hasCode(err, ErrCodeNotReady)
}

// NewParseError wraps a script parse failure.
func NewParseError(err error) *Error {
	return &Error{Code: ErrCodeParse, Message: "action script rejected", Err: err}
}

// NewInvalidParameterError wraps a settings rejection.
func NewInvalidParameterError(err error) *Error {
	return &Error{Code: ErrCodeInvalidParameter, Message: "settings rejected", Err: err}
}

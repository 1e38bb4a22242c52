package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes core errors.
type ErrorCode string

const (
	// ErrCodeMalformedToken indicates a scanned token does not have the
	// USER-<identityId>-<code> shape.
	ErrCodeMalformedToken ErrorCode = "MALFORMED_TOKEN"

	// ErrCodeParticipantNotFound indicates a token resolved to no participant
	// in the target event.
	ErrCodeParticipantNotFound ErrorCode = "PARTICIPANT_NOT_FOUND"

	// ErrCodeNotFound indicates a participant or event that does not exist,
	// or a participant that does not belong to the stated event.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidTransition indicates a lifecycle precondition failed.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeNetworkFailure indicates the authority could not be reached or
	// did not answer in time. Retryable for idempotent operations only.
	ErrCodeNetworkFailure ErrorCode = "NETWORK_FAILURE"

	// ErrCodeStaleWrite indicates an acknowledged write that never appeared
	// in a refresh within the grace window.
	ErrCodeStaleWrite ErrorCode = "STALE_WRITE"

	// ErrCodeInvalidRequest indicates a request that fails input validation.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// Error is the single error type of the core. Callers inspect Code through
// errors.As or the Is* helpers so that wrapping is transparent.
type Error struct {
	Code          ErrorCode
	Message       string
	EventID       string
	ParticipantID string
	Err           error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ParticipantID != "" {
		msg += fmt.Sprintf(" (participant=%s)", e.ParticipantID)
	}
	if e.EventID != "" {
		msg += fmt.Sprintf(" (event=%s)", e.EventID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError attaches a code to an underlying error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound creates a NOT_FOUND error for a participant, optionally scoped to
// an event.
func NotFound(participantID, eventID string) *Error {
	return &Error{
		Code:          ErrCodeNotFound,
		Message:       "participant not found",
		ParticipantID: participantID,
		EventID:       eventID,
	}
}

// InvalidTransition creates an INVALID_TRANSITION error.
func InvalidTransition(participantID string, from Status, action string) *Error {
	return &Error{
		Code:          ErrCodeInvalidTransition,
		Message:       fmt.Sprintf("cannot %s from status %q", action, from),
		ParticipantID: participantID,
	}
}

// CodeOf extracts the ErrorCode of err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound matches both NOT_FOUND and PARTICIPANT_NOT_FOUND.
func IsNotFound(err error) bool {
	c := CodeOf(err)
	return c == ErrCodeNotFound || c == ErrCodeParticipantNotFound
}

// IsRetryable reports whether an idempotent operation may be retried.
func IsRetryable(err error) bool {
	return IsCode(err, ErrCodeNetworkFailure)
}

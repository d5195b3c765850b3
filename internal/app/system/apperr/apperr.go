// Package apperr defines the domain error taxonomy shared by stores,
// policies and the session layer.
//
// An *Error carries a Code (used for matching and HTTP mapping), a message
// that is safe to show to the end user, and an optional cause that is only
// ever surfaced to logs through Unwrap.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain failure.
type Code string

const (
	CodeNotFound              Code = "not_found"
	CodeCommunityNotFound     Code = "community_not_found"
	CodeNotMember             Code = "not_member"
	CodeUnauthorized          Code = "unauthorized"
	CodeDuplicateName         Code = "duplicate_name"
	CodeRemoteOperationFailed Code = "remote_operation_failed"
	CodeSwitchFailed          Code = "switch_failed"
	CodeValidationFailed      Code = "validation_failed"
)

// Sentinels for errors.Is. Matching is by code, so a wrapped or
// re-messaged error still matches its sentinel.
var (
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "Not found."}
	ErrCommunityNotFound     = &Error{Code: CodeCommunityNotFound, Message: "Community ID not found."}
	ErrNotMember             = &Error{Code: CodeNotMember, Message: "You are not a member of this community."}
	ErrUnauthorized          = &Error{Code: CodeUnauthorized, Message: "You must be signed in."}
	ErrDuplicateName         = &Error{Code: CodeDuplicateName, Message: "Community name already exists. Please choose another name."}
	ErrRemoteOperationFailed = &Error{Code: CodeRemoteOperationFailed, Message: "Something went wrong. Please try again."}
	ErrSwitchFailed          = &Error{Code: CodeSwitchFailed, Message: "Unable to switch community. Please try again."}
	ErrValidationFailed      = &Error{Code: CodeValidationFailed, Message: "Invalid input."}
)

// Error is a domain error with a user-presentable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// Error returns the user-presentable message only.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause for logging.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New builds an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error with the given code and message that keeps cause
// available to logs.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Remote wraps a failed remote call. If cause is already a domain error it
// is returned unchanged.
func Remote(message string, cause error) error {
	var de *Error
	if errors.As(cause, &de) {
		return cause
	}
	if message == "" {
		message = ErrRemoteOperationFailed.Message
	}
	return Wrap(CodeRemoteOperationFailed, message, cause)
}

// Validation builds a ValidationFailed error with a specific message.
func Validation(message string) *Error {
	return New(CodeValidationFailed, message)
}

// CodeOf returns the code of err, or "" if err is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Message returns the user-presentable message for err. Errors outside the
// taxonomy fall back to the generic remote-failure message so internal
// details never reach the user.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ErrRemoteOperationFailed.Message
}

// Package domainerrors carries the internal failure taxonomy of the sign-up
// workflow. Stores return sentinel errors; services translate them into a
// *Error with one of the Codes below; the portal facade is the only place that
// turns these into the outward error type.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a machine readable failure kind.
type Code string

const (
	CodeInvalidArgument      Code = "invalid_argument"
	CodeRegistrationRejected Code = "registration_rejected"
	CodeRegistrationFailed   Code = "registration_failed"
	CodeInvalidCode          Code = "invalid_code"
	CodeExpiredCode          Code = "expired_code"
	CodeUserNotFound         Code = "user_not_found"
	CodeClaimMissing         Code = "claim_missing"
	CodeLookupFailed         Code = "lookup_failed"
	CodeInternal             Code = "internal"
)

// ClientCaused reports whether failures of this kind are the caller's doing
// (bad input, business rule) as opposed to a server or dependency failure.
func (c Code) ClientCaused() bool {
	switch c {
	case CodeInvalidArgument, CodeRegistrationRejected, CodeInvalidCode, CodeExpiredCode, CodeUserNotFound:
		return true
	}
	return false
}

// Error is a classified failure. Err, when set, is the underlying cause and is
// never shown to callers outside the service.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap classifies err. A nil err still yields an error so callers can use
// Wrap for timeouts and other synthesized failures.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the outermost classified error in err's chain has code.
func HasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// CodeOf returns the code of the outermost classified error in err's chain.
func CodeOf(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

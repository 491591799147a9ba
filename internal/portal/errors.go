package portal

import (
	dErrors "selfsignup/pkg/domain-errors"
)

// Machine codes that survive translation so callers can tell an unknown code
// from an expired one.
const (
	CodeInvalidConfirmation = "18001"
	CodeExpiredConfirmation = "18002"
)

// Outward messages.
const (
	msgRegister    = "Error occurred during user self sign-up."
	msgConfirm     = "Error occurred during self sign-up user confirmation."
	msgResend      = "Error occurred while resending confirmation email."
	msgUserMissing = "User could not be found."
	msgUserLookup  = "Error occurred while retrieving user."
	msgUserClaims  = "Error occurred while retrieving user information."
)

// Error is the single failure type handed to portal callers. Code is set only
// for invalid and expired confirmation codes.
type Error struct {
	Code    string
	Message string

	clientFault bool
}

func (e *Error) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ClientFault reports whether the caller can fix the failure by changing its
// input. Transports map it to 4xx versus 5xx.
func (e *Error) ClientFault() bool {
	return e.clientFault
}

// Expired reports whether the failure is an expired confirmation code, for
// which a resend is the way forward.
func (e *Error) Expired() bool {
	return e.Code == CodeExpiredConfirmation
}

// NewError builds the outward error for an internal failure kind.
func NewError(kind dErrors.Code, message string) *Error {
	out := &Error{Message: message, clientFault: kind.ClientCaused()}
	switch kind {
	case dErrors.CodeInvalidCode:
		out.Code = CodeInvalidConfirmation
	case dErrors.CodeExpiredCode:
		out.Code = CodeExpiredConfirmation
	}
	return out
}

// messageFor picks the outward message for kind. Lookup failures keep their
// own wording; everything else gets the operation's generic message.
func messageFor(kind dErrors.Code, fallback string) string {
	switch kind {
	case dErrors.CodeUserNotFound:
		return msgUserMissing
	case dErrors.CodeLookupFailed:
		return msgUserLookup
	case dErrors.CodeClaimMissing:
		return msgUserClaims
	}
	return fallback
}

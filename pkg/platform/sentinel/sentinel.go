package sentinel

import "errors"

// Sentinel errors returned (usually wrapped) by stores and other infrastructure
// adapters. They describe facts about stored state; services decide what the
// fact means for the caller.
//
//   - ErrNotFound: no record for the key (unknown code, user, domain)
//   - ErrConflict: a record with the same unique key already exists
//   - ErrExpired: the record exists but its validity window has passed
//   - ErrInvalidState: the record is in a state that forbids the operation
//   - ErrUnavailable: the backing system could not be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

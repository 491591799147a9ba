package service

import (
	"context"
	"errors"
	"strings"

	"selfsignup/internal/signup/models"
	dErrors "selfsignup/pkg/domain-errors"
	audit "selfsignup/pkg/platform/audit"
	"selfsignup/pkg/platform/sentinel"
)

// activationError marks failures of the finalize step so they are not
// mistaken for store outcomes such as a missing code.
type activationError struct {
	err error
}

func (e *activationError) Error() string { return "activate account: " + e.err.Error() }
func (e *activationError) Unwrap() error { return e.err }

// Confirm consumes code and activates the account it was issued for. A code
// confirms at most once; after its TTL every attempt reports expiry.
func (s *Service) Confirm(ctx context.Context, code string) (err error) {
	ctx, end := s.begin(ctx, "confirm")
	defer func() { end(err) }()
	defer func() {
		if err == nil {
			s.metrics.IncConfirmation("confirmed")
		} else {
			s.metrics.IncConfirmation(outcome(err))
		}
	}()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	code = strings.TrimSpace(code)
	if code == "" {
		return dErrors.New(dErrors.CodeInvalidCode, "confirmation code is required")
	}

	reg, err := s.registrations.ConsumeCode(ctx, code, s.now(ctx),
		func(ctx context.Context, r *models.PendingRegistration) error {
			if err := s.identities.Activate(ctx, r.UserID); err != nil {
				return &activationError{err: err}
			}
			return nil
		})

	var actErr *activationError
	switch {
	case err == nil:
		s.logAudit(ctx, audit.Event{UserID: reg.UserID, Domain: reg.Domain, Action: audit.ActionConfirmed})
		return nil
	case errors.As(err, &actErr):
		return dErrors.Wrap(err, dErrors.CodeRegistrationFailed, "failed to activate account")
	case errors.Is(err, sentinel.ErrExpired):
		if reg != nil {
			s.logAudit(ctx, audit.Event{UserID: reg.UserID, Domain: reg.Domain, Action: audit.ActionExpired})
		}
		return dErrors.Wrap(err, dErrors.CodeExpiredCode, "confirmation code has expired")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInvalidCode, "invalid confirmation code")
	default:
		return dErrors.Wrap(err, dErrors.CodeRegistrationFailed, "failed to confirm registration")
	}
}

package service

import (
	"context"
	"errors"
	"strings"

	"selfsignup/internal/signup/models"
	"selfsignup/internal/signup/notify"
	dErrors "selfsignup/pkg/domain-errors"
	audit "selfsignup/pkg/platform/audit"
	"selfsignup/pkg/platform/sentinel"
)

// Resend replaces the confirmation code of the registration held by the
// claim's value in domain and dispatches the new code. The previous code is
// dead as soon as this returns. An EXPIRED registration is re-armed; a
// CONFIRMED or unknown one is rejected. Resend never creates a registration.
//
// properties apply to this dispatch only (e.g. a new callback); when empty
// the properties given at registration are reused.
func (s *Service) Resend(ctx context.Context, claim models.Claim, domain string, properties []models.Property) (resp *models.NotificationResponse, err error) {
	ctx, end := s.begin(ctx, "resend")
	defer func() { end(err) }()
	defer func() {
		if err == nil {
			s.metrics.IncResend("reissued")
		} else {
			s.metrics.IncResend(outcome(err))
		}
	}()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if strings.TrimSpace(claim.Value) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "claim value is required")
	}
	key := models.PrincipalKey{Domain: s.domainOrDefault(strings.TrimSpace(domain)), Value: claim.Value}

	now := s.now(ctx)
	reg, err := s.registrations.ReissueCode(ctx, key, models.NewConfirmationCode(s.newCode(), now, s.codeTTL))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeRegistrationRejected, "no pending registration for user")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.Wrap(err, dErrors.CodeRegistrationRejected, "registration already confirmed")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeRegistrationFailed, "failed to reissue confirmation code")
		}
	}

	s.logAudit(ctx, audit.Event{UserID: reg.UserID, Domain: reg.Domain, Action: audit.ActionCodeReissued, Channel: string(reg.Channel)})

	if len(properties) == 0 {
		properties = reg.Properties
	}
	if err := s.dispatch(ctx, reg, notify.TemplateResendAccountConfirmation, properties); err != nil {
		return nil, err
	}
	return response(reg), nil
}

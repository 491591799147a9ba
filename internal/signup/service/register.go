package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	identity "selfsignup/internal/identity/models"
	"selfsignup/internal/signup/models"
	"selfsignup/internal/signup/notify"
	dErrors "selfsignup/pkg/domain-errors"
	audit "selfsignup/pkg/platform/audit"
	"selfsignup/pkg/platform/sentinel"
)

// RegisterRequest is a normalized self sign-up request.
type RegisterRequest struct {
	Claims      []models.Claim
	Credentials []models.Credential
	Domain      string
	Properties  []models.Property
}

// Register creates a pending account and registration and dispatches the
// confirmation code. Credentials are wiped once handed to the identity store.
//
// A failure after the account is created removes it again, except for
// notification failures: the registration stays PENDING so a resend can
// recover it.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (resp *models.NotificationResponse, err error) {
	ctx, end := s.begin(ctx, "register")
	defer func() { end(err) }()
	defer models.WipeAll(req.Credentials)
	defer func() {
		if err == nil {
			s.metrics.IncRegistration("pending")
		} else {
			s.metrics.IncRegistration(outcome(err))
		}
	}()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if len(req.Claims) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "at least one claim is required")
	}
	if len(req.Credentials) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "at least one credential is required")
	}
	domain := s.domainOrDefault(strings.TrimSpace(req.Domain))

	principal := principalClaim(req.Claims)
	if principal.Value == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "claim "+principal.Name+" has no value")
	}
	channel, err := s.channelFor(req.Properties)
	if err != nil {
		return nil, err
	}
	recipient, err := recipientFor(channel, principal, req.Claims)
	if err != nil {
		return nil, err
	}

	user, err := s.identities.CreatePending(ctx, identity.NewAccount{
		Domain:      domain,
		Username:    principal.Value,
		Claims:      req.Claims,
		Credentials: req.Credentials,
	})
	if err != nil {
		return nil, translateAccountError(err)
	}

	now := s.now(ctx)
	reg := &models.PendingRegistration{
		ID:         uuid.New(),
		UserID:     user.ID,
		Domain:     domain,
		Principal:  principal,
		Claims:     req.Claims,
		Properties: req.Properties,
		Channel:    channel,
		Recipient:  recipient,
		Status:     models.StatusPending,
		Code:       models.NewConfirmationCode(s.newCode(), now, s.codeTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.registrations.Create(ctx, reg); err != nil {
		s.removeAccount(ctx, user.ID)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeRegistrationRejected, "a registration is already pending for this user")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRegistrationFailed, "failed to store registration")
	}

	s.logAudit(ctx, audit.Event{UserID: user.ID, Domain: domain, Action: audit.ActionRegistered, Channel: string(channel)})

	if err := s.dispatch(ctx, reg, notify.TemplateAccountConfirmation, req.Properties); err != nil {
		return nil, err
	}
	return response(reg), nil
}

// principalClaim is the username claim when supplied, else the first claim.
func principalClaim(claims []models.Claim) models.Claim {
	for _, c := range claims {
		if c.Name == models.UsernameClaim {
			return c
		}
	}
	return claims[0]
}

func (s *Service) channelFor(props []models.Property) (models.Channel, error) {
	raw, ok := models.PropertyValue(props, models.PropertyNotificationChannel)
	if !ok || strings.TrimSpace(raw) == "" {
		return s.defaultChannel, nil
	}
	return models.ParseChannel(raw)
}

func recipientFor(channel models.Channel, principal models.Claim, claims []models.Claim) (string, error) {
	uri := channel.RecipientClaim()
	if uri == "" {
		return principal.Value, nil
	}
	if v, ok := models.ClaimValue(claims, uri); ok && v != "" {
		return v, nil
	}
	return "", dErrors.New(dErrors.CodeRegistrationRejected,
		"notification channel "+string(channel)+" requires claim "+uri)
}

func translateAccountError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeRegistrationRejected, "unknown user store domain")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeRegistrationRejected, "user already exists")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeRegistrationRejected, "credentials rejected by the user store")
	default:
		return dErrors.Wrap(err, dErrors.CodeRegistrationFailed, "failed to create account")
	}
}

// removeAccount compensates a half-finished registration. It runs even when
// ctx already timed out.
func (s *Service) removeAccount(ctx context.Context, userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := s.identities.Delete(ctx, userID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.ErrorContext(ctx, "failed to remove pending account after registration failure",
			"user_id", userID.String(),
			"error", err,
		)
	}
}

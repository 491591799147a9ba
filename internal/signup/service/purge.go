package service

import (
	"context"
	"errors"
	"time"

	"selfsignup/internal/signup/models"
	dErrors "selfsignup/pkg/domain-errors"
	audit "selfsignup/pkg/platform/audit"
	"selfsignup/pkg/platform/sentinel"
)

// PurgeExpired drops registrations that were confirmed, or whose code
// lapsed, more than retention ago. Accounts of lapsed registrations are
// removed with them unless they have been activated.
func (s *Service) PurgeExpired(ctx context.Context, retention time.Duration) (n int, err error) {
	ctx, end := s.begin(ctx, "purge")
	defer func() { end(err) }()

	before := s.now(ctx).Add(-retention)
	removed, err := s.registrations.DeleteExpired(ctx, before)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge registrations")
	}

	for _, reg := range removed {
		if reg.Status == models.StatusConfirmed {
			continue
		}
		err := s.identities.DeletePending(ctx, reg.UserID)
		switch {
		case err == nil, errors.Is(err, sentinel.ErrNotFound):
		case errors.Is(err, sentinel.ErrInvalidState):
			s.logger.WarnContext(ctx, "kept active account of unconfirmed registration",
				"user_id", reg.UserID.String(),
				"domain", reg.Domain,
			)
			continue
		default:
			s.logger.WarnContext(ctx, "failed to remove unconfirmed account",
				"user_id", reg.UserID.String(),
				"error", err,
			)
			continue
		}
		s.logAudit(ctx, audit.Event{UserID: reg.UserID, Domain: reg.Domain, Action: audit.ActionAbandoned})
	}

	s.metrics.AddPurged(len(removed))
	if len(removed) > 0 {
		s.logger.InfoContext(ctx, "purged registrations", "count", len(removed), "before", before)
	}
	return len(removed), nil
}

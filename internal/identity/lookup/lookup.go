package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"selfsignup/internal/identity/models"
	signup "selfsignup/internal/signup/models"
	dErrors "selfsignup/pkg/domain-errors"
	"selfsignup/pkg/platform/sentinel"
)

// UserStore is the slice of the identity store the adapter reads.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetClaims(ctx context.Context, id uuid.UUID, uris ...string) ([]signup.Claim, error)
}

const defaultTimeout = 5 * time.Second

// Adapter resolves the canonical claim of an account from its opaque id.
type Adapter struct {
	users    UserStore
	claimURI string
	timeout  time.Duration
}

type Option func(*Adapter)

// WithClaim changes which claim is treated as the account's canonical one.
func WithClaim(uri string) Option {
	return func(a *Adapter) {
		if uri != "" {
			a.claimURI = uri
		}
	}
}

// WithTimeout bounds each lookup when the caller has not set a deadline.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func New(users UserStore, opts ...Option) *Adapter {
	a := &Adapter{users: users, claimURI: signup.UsernameClaim, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ResolvePrimaryClaim returns the canonical claim of the user and the domain
// the account lives in.
//
// Failures: user_not_found when no account has that id, lookup_failed when the
// store errors or times out, claim_missing when the account exists but lacks
// the claim.
func (a *Adapter) ResolvePrimaryClaim(ctx context.Context, userID string) (signup.Claim, string, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return signup.Claim{}, "", dErrors.Wrap(err, dErrors.CodeUserNotFound, "user not found")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	user, err := a.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return signup.Claim{}, "", dErrors.Wrap(err, dErrors.CodeUserNotFound, "user not found")
		}
		return signup.Claim{}, "", dErrors.Wrap(err, dErrors.CodeLookupFailed, "failed to load user")
	}

	claims, err := a.users.GetClaims(ctx, id, a.claimURI)
	if err != nil {
		return signup.Claim{}, "", dErrors.Wrap(err, dErrors.CodeLookupFailed, "failed to load user claims")
	}
	for _, c := range claims {
		if c.Name == a.claimURI && c.Value != "" {
			return c, user.Domain, nil
		}
	}
	return signup.Claim{}, "", dErrors.New(dErrors.CodeClaimMissing, "user has no "+a.claimURI+" claim")
}

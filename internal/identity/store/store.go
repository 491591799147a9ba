package store

import (
	"fmt"
	"slices"
	"time"

	"selfsignup/internal/identity/secrets"
	signup "selfsignup/internal/signup/models"
	"selfsignup/pkg/platform/sentinel"
)

// Error Contract:
// - sentinel.ErrNotFound: unknown user, or ErrUnknownDomain for unconfigured domains
// - sentinel.ErrConflict: the username is already taken in the domain
// - sentinel.ErrInvalidState: credential material rejected, or a pending account tried to authenticate

// ErrUnknownDomain is returned when an account targets a domain no user store serves.
var ErrUnknownDomain = fmt.Errorf("unknown user store domain: %w", sentinel.ErrNotFound)

// Option configures the identity stores.
type Option func(*options)

type options struct {
	hasher secrets.Hasher
	clock  func() time.Time
}

func defaultOptions() options {
	return options{hasher: secrets.NewHasher(0), clock: time.Now}
}

// WithHasher overrides the credential hasher (tests lower the bcrypt cost).
func WithHasher(h secrets.Hasher) Option {
	return func(o *options) { o.hasher = h }
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func filterClaims(claims []signup.Claim, uris []string) []signup.Claim {
	if len(uris) == 0 {
		return slices.Clone(claims)
	}
	out := make([]signup.Claim, 0, len(uris))
	for _, c := range claims {
		if slices.Contains(uris, c.Name) {
			out = append(out, c)
		}
	}
	return out
}

func hashCredentials(h secrets.Hasher, creds []signup.Credential) (map[string][]byte, error) {
	hashes := make(map[string][]byte, len(creds))
	for _, c := range creds {
		if _, dup := hashes[c.Type]; dup {
			return nil, fmt.Errorf("duplicate credential %q: %w", c.Type, secrets.ErrRejected)
		}
		hash, err := h.Hash(c.Secret())
		if err != nil {
			return nil, err
		}
		hashes[c.Type] = hash
	}
	return hashes, nil
}

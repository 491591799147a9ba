package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"selfsignup/pkg/platform/sentinel"
)

// Status of a pending registration.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusExpired   Status = "EXPIRED"
)

// ConfirmationCode is the single-use token bound to one registration.
type ConfirmationCode struct {
	Value     string    `json:"value"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewConfirmationCode issues value valid for ttl from now.
func NewConfirmationCode(value string, now time.Time, ttl time.Duration) ConfirmationCode {
	return ConfirmationCode{Value: value, IssuedAt: now, ExpiresAt: now.Add(ttl)}
}

// PendingRegistration tracks a self sign-up between registration and
// confirmation. Credentials are not part of it: they are handed to the
// identity store when the pending account is created.
type PendingRegistration struct {
	ID          uuid.UUID        `json:"id"`
	UserID      uuid.UUID        `json:"user_id"`
	Domain      string           `json:"domain"`
	Principal   Claim            `json:"principal"`
	Claims      []Claim          `json:"claims"`
	Properties  []Property       `json:"properties"`
	Channel     Channel          `json:"channel"`
	Recipient   string           `json:"recipient"`
	Status      Status           `json:"status"`
	Code        ConfirmationCode `json:"code"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ConfirmedAt *time.Time       `json:"confirmed_at,omitempty"`
}

// ValidateForConfirm decides whether code confirms r at now. A code that is
// no longer bound to r (consumed or replaced) reads as not found.
func (r *PendingRegistration) ValidateForConfirm(code string, now time.Time) error {
	if r.Status == StatusConfirmed || r.Code.Value == "" || r.Code.Value != code {
		return fmt.Errorf("confirmation code not live: %w", sentinel.ErrNotFound)
	}
	if r.Status == StatusExpired || now.After(r.Code.ExpiresAt) {
		return fmt.Errorf("confirmation code expired at %s: %w", r.Code.ExpiresAt.Format(time.RFC3339), sentinel.ErrExpired)
	}
	return nil
}

// MarkExpired moves a pending registration to EXPIRED. The code stays bound
// so later attempts keep reporting expiry.
func (r *PendingRegistration) MarkExpired(now time.Time) {
	if r.Status != StatusPending {
		return
	}
	r.Status = StatusExpired
	r.UpdatedAt = now
}

// MarkConfirmed completes the registration and consumes its code.
func (r *PendingRegistration) MarkConfirmed(now time.Time) {
	r.Status = StatusConfirmed
	r.Code = ConfirmationCode{}
	r.ConfirmedAt = &now
	r.UpdatedAt = now
}

// Reissue replaces the code and re-arms the registration. Confirmed
// registrations cannot be reissued.
func (r *PendingRegistration) Reissue(code ConfirmationCode) error {
	if r.Status == StatusConfirmed {
		return fmt.Errorf("registration already confirmed: %w", sentinel.ErrInvalidState)
	}
	r.Code = code
	r.Status = StatusPending
	r.UpdatedAt = code.IssuedAt
	return nil
}

// Clone returns a deep copy so stores never hand out their own records.
func (r *PendingRegistration) Clone() *PendingRegistration {
	if r == nil {
		return nil
	}
	c := *r
	c.Claims = slices.Clone(r.Claims)
	c.Properties = slices.Clone(r.Properties)
	if r.ConfirmedAt != nil {
		t := *r.ConfirmedAt
		c.ConfirmedAt = &t
	}
	return &c
}

// PrincipalKey identifies a registration by the value of its principal claim
// within a domain.
type PrincipalKey struct {
	Domain string
	Value  string
}

func (r *PendingRegistration) Key() PrincipalKey {
	return PrincipalKey{Domain: r.Domain, Value: r.Principal.Value}
}

package models

import (
	"time"

	"github.com/google/uuid"

	signup "selfsignup/internal/signup/models"
)

// AccountStatus is the lifecycle state of a user account.
type AccountStatus string

const (
	// AccountPending accounts exist but cannot authenticate until the
	// self sign-up is confirmed.
	AccountPending AccountStatus = "PENDING"
	AccountActive  AccountStatus = "ACTIVE"
)

// User is an account in a user-store domain.
type User struct {
	ID        uuid.UUID
	Domain    string
	Username  string
	Status    AccountStatus
	Claims    []signup.Claim
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) IsPending() bool {
	return u.Status == AccountPending
}

// NewAccount is the input for creating a pending account.
type NewAccount struct {
	Domain      string
	Username    string
	Claims      []signup.Claim
	Credentials []signup.Credential
}

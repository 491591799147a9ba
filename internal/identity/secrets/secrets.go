package secrets

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"selfsignup/pkg/platform/sentinel"
)

// ErrRejected marks credential material the hasher refuses (empty or longer
// than bcrypt accepts).
var ErrRejected = fmt.Errorf("credential rejected: %w", sentinel.ErrInvalidState)

// Hasher hashes credential secrets with bcrypt at a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using cost, or bcrypt.DefaultCost when cost is
// outside bcrypt's accepted range.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

// Hash creates a bcrypt hash of secret. The secret itself is not retained.
func (h Hasher) Hash(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty secret: %w", ErrRejected)
	}
	hashed, err := bcrypt.GenerateFromPassword(secret, h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("secret too long: %w", ErrRejected)
		}
		return nil, fmt.Errorf("could not hash secret: %w", err)
	}
	return hashed, nil
}

// Verify checks a plaintext secret against a bcrypt hash.
func Verify(secret, hash []byte) (bool, error) {
	if err := bcrypt.CompareHashAndPassword(hash, secret); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("could not verify secret: %w", err)
	}
	return true, nil
}

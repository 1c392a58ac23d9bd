// Package password hashes and verifies user passwords.
package password

import (
	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"

	"github.com/nordlys-id/nordlys/pkg/apperr"
)

const (
	MinCost     = bcrypt.MinCost
	MaxCost     = bcrypt.MaxCost
	DefaultCost = 12

	// MaxPasswordLength bounds input before hashing; bcrypt ignores bytes
	// past 72 anyway and unbounded input invites abuse.
	MaxPasswordLength = 128

	// minEntropyBits is the hard floor independent of any configured
	// password complexity policy.
	minEntropyBits = 50
)

// Hasher hashes and compares passwords with a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher. Costs outside the bcrypt range fall back to
// DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < MinCost || cost > MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", apperr.ThrowInvalidArgument(nil, "PASSWD-001", "password must not be empty")
	}
	if len(plain) > MaxPasswordLength {
		return "", apperr.ThrowInvalidArgument(nil, "PASSWD-002", "password too long")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", apperr.ThrowInternal(err, "PASSWD-003", "hashing password failed")
	}
	return string(hashed), nil
}

// Compare verifies plain against a stored hash. A mismatch is
// UNAUTHENTICATED so callers cannot tell it apart from an unknown user.
func (h *Hasher) Compare(hashed, plain string) error {
	if hashed == "" || plain == "" {
		return apperr.ThrowUnauthenticated(nil, "PASSWD-004", "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)); err != nil {
		return apperr.ThrowUnauthenticated(err, "PASSWD-005", "invalid credentials")
	}
	return nil
}

// ValidateStrength enforces the entropy floor. Complexity-policy rules
// (length, character classes) are checked separately by the command layer.
func ValidateStrength(plain string) error {
	if err := passwordvalidator.Validate(plain, minEntropyBits); err != nil {
		return apperr.ThrowInvalidArgument(err, "PASSWD-006", "password too weak")
	}
	return nil
}

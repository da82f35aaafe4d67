// ABOUTME: Password hashing and verification using bcrypt
// ABOUTME: Provides strength checks and a dummy comparison for timing-safe missing-user handling

package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrWeakPassword is returned when a password fails the strength check.
var ErrWeakPassword = errors.New("password too weak")

// DefaultMinLength is the minimum accepted password length.
const DefaultMinLength = 6

// dummyHash is a valid bcrypt digest of a throwaway value. Comparing
// against it costs the same as a real mismatch, which keeps login timing
// identical whether or not the account exists.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Hasher produces and verifies salted one-way password digests.
// The cost factor is tunable for brute-force resistance.
type Hasher struct {
	cost      int
	minLength int
}

// NewHasher creates a Hasher. Zero values fall back to bcrypt.DefaultCost
// and DefaultMinLength.
func NewHasher(cost, minLength int) *Hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if minLength == 0 {
		minLength = DefaultMinLength
	}
	return &Hasher{cost: cost, minLength: minLength}
}

// Hash produces a salted one-way digest of the plaintext. The plaintext is
// never logged or stored.
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches the digest. bcrypt's comparison
// is constant-time with respect to mismatch position.
func (h *Hasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// CheckStrength validates a candidate password, returning ErrWeakPassword
// when it falls below the minimum length.
func (h *Hasher) CheckStrength(plaintext string) error {
	if len(plaintext) < h.minLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, h.minLength)
	}
	return nil
}

// DummyCompare burns one bcrypt comparison against a fixed digest. Callers
// invoke it when the user record is missing so the response time matches a
// real wrong-password check.
func DummyCompare(plaintext string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plaintext))
}

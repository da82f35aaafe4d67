// ABOUTME: Error taxonomy for the auth engine
// ABOUTME: Every operation returns one of these typed errors; none are silently swallowed

package auth

import (
	"errors"

	"github.com/2389/asf-auth/internal/password"
)

var (
	// ErrInvalidCredentials is returned when the email/password pair does not
	// match. Callers must render it identically to ErrAccountLocked so the
	// two cases cannot be told apart by an attacker.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned while a lockout window is in effect.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountInactive is returned for deactivated accounts.
	ErrAccountInactive = errors.New("account inactive")

	// ErrEmailUnverified is returned when verified email is required by
	// policy and the account has not verified.
	ErrEmailUnverified = errors.New("email not verified")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrWeakPassword is returned when a password fails the strength check.
	ErrWeakPassword = password.ErrWeakPassword

	// ErrTokenExpired is returned for action tokens past their TTL.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenNotFound is returned for unknown action tokens.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenAlreadyUsed is returned for action tokens that were consumed.
	ErrTokenAlreadyUsed = errors.New("token already used")

	// ErrSessionExpired is returned when a session token's lifetime or idle
	// window has elapsed. The caller should prompt re-login.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionInvalid is returned for malformed, mis-signed, or revoked
	// session tokens.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrForbidden is returned when the session's role does not satisfy a
	// role requirement.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable is returned when storage stays unreachable after
	// bounded retries. Auth fails closed: this is never converted into a
	// success.
	ErrUnavailable = errors.New("auth unavailable")
)

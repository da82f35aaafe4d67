// ABOUTME: Store interface and data types for asf-auth persistence
// ABOUTME: Defines User, Session, ActionToken structs and the atomic operations the engine relies on

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a requested user does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailTaken is returned when creating a user with an email that is already registered.
var ErrEmailTaken = errors.New("email already registered")

// ErrSessionNotFound is returned when a session does not exist, is revoked, or is expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrTokenNotFound is returned when an action token does not exist.
var ErrTokenNotFound = errors.New("action token not found")

// ErrTokenConsumed is returned when an action token has already been consumed.
var ErrTokenConsumed = errors.New("action token already consumed")

// ErrTokenExpired is returned when an action token is past its expiry.
var ErrTokenExpired = errors.New("action token expired")

// Role is a user's access level. Roles are flat; any superset relationship
// is declared explicitly by the auth package, never inferred here.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// ValidRoles lists all assignable roles.
var ValidRoles = []Role{RoleUser, RoleManager, RoleAdmin}

// ValidRole reports whether r is one of the assignable roles.
func ValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is a credential record. PasswordHash is a bcrypt digest; the
// plaintext never reaches the store.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	FullName      string
	Role          Role
	Active        bool
	EmailVerified bool
	LoginAttempts int
	LockedUntil   *time.Time
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Locked reports whether the account is locked out at the given instant.
// Lockout expires lazily; no sweep clears LockedUntil.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Session is the server-side record of an active login. The token is the
// signed session token issued at login; the row is the revocation and
// sliding-expiry source of truth.
type Session struct {
	Token        string
	UserID       string
	IP           string
	UserAgent    string
	Active       bool
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
}

// TokenPurpose restricts what an action token can be consumed for.
type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "verify-email"
	PurposeResetPassword TokenPurpose = "reset-password"
)

// ActionToken is a single-use, time-boxed token persisted server-side.
// The token string itself is opaque (crypto/rand), not self-describing.
type ActionToken struct {
	Token     string
	UserID    string
	Purpose   TokenPurpose
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// LockoutResult reports the outcome of recording a failed login.
type LockoutResult struct {
	Attempts    int
	LockedUntil *time.Time
}

// Store defines the persistence interface for users, sessions, and action
// tokens. Implementations must provide the atomicity guarantees the engine
// depends on: RecordLoginFailure serializes the attempts counter per user,
// ConsumeActionToken is at-most-once per token, and TouchSession never
// extends a revoked or already-expired session.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	SetUserRole(ctx context.Context, id string, role Role) error
	SetUserActive(ctx context.Context, id string, active bool) error
	MarkEmailVerified(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*User, error)
	DeleteUser(ctx context.Context, id string) error

	// Lockout counter. RecordLoginFailure increments the failed-attempt
	// counter and, when the threshold is crossed, sets the lock expiry in
	// the same serialized operation. RecordLoginSuccess resets the counter,
	// clears the lock, and stamps last_login.
	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockUntil time.Time) (*LockoutResult, error)
	RecordLoginSuccess(ctx context.Context, userID string, now time.Time) error

	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	TouchSession(ctx context.Context, token string, now, expiresAt time.Time) (*Session, error)
	RevokeSession(ctx context.Context, token string) error
	RevokeUserSessions(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)

	// Action tokens. ConsumeActionToken performs a compare-and-set on the
	// consumed flag; concurrent calls on the same token succeed at most once.
	CreateActionToken(ctx context.Context, token *ActionToken) error
	GetActionToken(ctx context.Context, token string) (*ActionToken, error)
	ConsumeActionToken(ctx context.Context, token string, purpose TokenPurpose, now time.Time) (*ActionToken, error)
	DeleteExpiredActionTokens(ctx context.Context, before time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// ABOUTME: The auth engine service: login, sessions, action tokens, and role gates
// ABOUTME: Wires the authenticator, store, hasher, and token issuer behind one synchronous API

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/asf-auth/internal/password"
	"github.com/2389/asf-auth/internal/store"
	"github.com/2389/asf-auth/internal/token"
)

// Config holds the engine's policy knobs.
type Config struct {
	SessionTTL      time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// ClientMeta is opaque request metadata recorded on sessions. The engine
// stores it but never interprets it.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Service is the authentication and session security engine. All operations
// are synchronous and safe for concurrent use; the store provides the
// serialization points.
type Service struct {
	store  store.Store
	hasher *password.Hasher
	issuer *token.Issuer
	authn  Authenticator
	cfg    Config
	logger *slog.Logger

	now func() time.Time // injectable for tests
}

// NewService creates the engine.
func NewService(st store.Store, hasher *password.Hasher, issuer *token.Issuer, authn Authenticator, cfg Config, logger *slog.Logger) *Service {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.VerificationTTL == 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	if cfg.ResetTTL == 0 {
		cfg.ResetTTL = time.Hour
	}
	return &Service{
		store:  st,
		hasher: hasher,
		issuer: issuer,
		authn:  authn,
		cfg:    cfg,
		logger: logger.With("component", "auth"),
		now:    time.Now,
	}
}

// Register creates a new account through the configured authenticator.
func (s *Service) Register(ctx context.Context, email, plaintext, fullName string) (*store.User, error) {
	return s.authn.Register(ctx, email, plaintext, fullName)
}

// Authenticate verifies credentials and, on success, creates a session with
// a sliding expiry window. The returned session's Token is the signed
// session token handed to the client.
func (s *Service) Authenticate(ctx context.Context, email, plaintext string, meta ClientMeta) (*store.Session, error) {
	user, err := s.authn.Authenticate(ctx, email, plaintext)
	if err != nil {
		return nil, err
	}
	return s.createSession(ctx, user, meta)
}

func (s *Service) createSession(ctx context.Context, user *store.User, meta ClientMeta) (*store.Session, error) {
	now := s.now()
	tok, err := s.issuer.IssueAt(user, now, s.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	session := &store.Session{
		Token:        tok,
		UserID:       user.ID,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		Active:       true,
		CreatedAt:    now.UTC(),
		ExpiresAt:    now.Add(s.cfg.SessionTTL).UTC(),
		LastActivity: now.UTC(),
	}

	err = withRetry(ctx, "create session", func(ctx context.Context) error {
		return s.store.CreateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session created", "user_id", user.ID)
	return session, nil
}

// ValidateSession checks a session token and, when valid, slides the expiry
// window forward by the full session TTL. Every authenticated request goes
// through here, so activity keeps a session alive indefinitely while idle
// time past the window expires it.
//
// Expired and invalid are distinct outcomes: ErrSessionExpired means the
// user should re-login; ErrSessionInvalid means the token is malformed,
// mis-signed, or revoked.
//
// Only the signature is checked on the token itself. The row's sliding
// ExpiresAt is the single expiry authority; the token's fixed exp claim
// would otherwise cap the window at the issue-time TTL no matter how
// recently the session was touched.
func (s *Service) ValidateSession(ctx context.Context, tokenString string) (*token.Claims, error) {
	claims, err := s.issuer.VerifySignature(tokenString)
	if err != nil {
		return nil, ErrSessionInvalid
	}

	now := s.now()
	err = withRetry(ctx, "touch session", func(ctx context.Context) error {
		_, terr := s.store.TouchSession(ctx, tokenString, now, now.Add(s.cfg.SessionTTL))
		return terr
	})
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, store.ErrSessionNotFound) {
		return nil, err
	}

	// The guarded touch refused. Look at the row to report why.
	var sess *store.Session
	gerr := withRetry(ctx, "get session", func(ctx context.Context) error {
		var e error
		sess, e = s.store.GetSession(ctx, tokenString)
		return e
	})
	if gerr != nil {
		if errors.Is(gerr, store.ErrSessionNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, gerr
	}
	if !sess.Active {
		return nil, ErrSessionInvalid
	}
	if !now.Before(sess.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return nil, ErrSessionInvalid
}

// Logout revokes a session. Idempotent; revoking an unknown token is a no-op.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	err := withRetry(ctx, "revoke session", func(ctx context.Context) error {
		return s.store.RevokeSession(ctx, tokenString)
	})
	if err != nil {
		return err
	}
	s.logger.Info("session revoked")
	return nil
}

// RequireRole returns ErrForbidden unless the claims satisfy the role
// check. Exposed on the service so callers hold one dependency.
func (s *Service) RequireRole(claims *token.Claims, want store.Role) error {
	return RequireRole(claims, want)
}

// RequestPasswordReset issues a reset action token for the account. To
// prevent account enumeration the operation reports success even for
// unknown emails; in that case the returned token is empty and the caller
// sends nothing.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*store.ActionToken, error) {
	var user *store.User
	err := withRetry(ctx, "get user", func(ctx context.Context) error {
		var e error
		user, e = s.store.GetUserByEmail(ctx, normalizeEmail(email))
		return e
	})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return s.issueActionToken(ctx, user.ID, store.PurposeResetPassword, s.cfg.ResetTTL)
}

// ResetPassword consumes a reset token and installs the new password. All
// of the user's sessions are revoked so a stolen session does not survive
// the reset.
func (s *Service) ResetPassword(ctx context.Context, tokenString, newPassword string) error {
	if err := s.hasher.CheckStrength(newPassword); err != nil {
		return err
	}

	at, err := s.consumeActionToken(ctx, tokenString, store.PurposeResetPassword)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = withRetry(ctx, "update password", func(ctx context.Context) error {
		return s.store.UpdateUserPassword(ctx, at.UserID, hash)
	})
	if err != nil {
		return err
	}

	err = withRetry(ctx, "revoke user sessions", func(ctx context.Context) error {
		return s.store.RevokeUserSessions(ctx, at.UserID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("password reset", "user_id", at.UserID)
	return nil
}

// RequestEmailVerification issues a verification action token for the user.
func (s *Service) RequestEmailVerification(ctx context.Context, userID string) (*store.ActionToken, error) {
	return s.issueActionToken(ctx, userID, store.PurposeVerifyEmail, s.cfg.VerificationTTL)
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, tokenString string) error {
	at, err := s.consumeActionToken(ctx, tokenString, store.PurposeVerifyEmail)
	if err != nil {
		return err
	}

	err = withRetry(ctx, "mark email verified", func(ctx context.Context) error {
		return s.store.MarkEmailVerified(ctx, at.UserID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("email verified", "user_id", at.UserID)
	return nil
}

// issueActionToken mints and persists an opaque single-use token.
func (s *Service) issueActionToken(ctx context.Context, userID string, purpose store.TokenPurpose, ttl time.Duration) (*store.ActionToken, error) {
	opaque, err := token.NewActionToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	at := &store.ActionToken{
		Token:     opaque,
		UserID:    userID,
		Purpose:   purpose,
		IssuedAt:  now.UTC(),
		ExpiresAt: now.Add(ttl).UTC(),
	}

	err = withRetry(ctx, "create action token", func(ctx context.Context) error {
		return s.store.CreateActionToken(ctx, at)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("action token issued", "user_id", userID, "purpose", purpose)
	return at, nil
}

// consumeActionToken maps the store's consumption outcomes onto the engine's
// taxonomy. The store guarantees at-most-once success per token.
func (s *Service) consumeActionToken(ctx context.Context, tokenString string, purpose store.TokenPurpose) (*store.ActionToken, error) {
	var at *store.ActionToken
	err := withRetry(ctx, "consume action token", func(ctx context.Context) error {
		var e error
		at, e = s.store.ConsumeActionToken(ctx, tokenString, purpose, s.now())
		return e
	})
	switch {
	case err == nil:
		return at, nil
	case errors.Is(err, store.ErrTokenNotFound):
		return nil, ErrTokenNotFound
	case errors.Is(err, store.ErrTokenConsumed):
		return nil, ErrTokenAlreadyUsed
	case errors.Is(err, store.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, err
	}
}

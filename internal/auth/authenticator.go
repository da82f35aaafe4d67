// ABOUTME: Authenticator variants: local credential store and external identity provider
// ABOUTME: Both conform to the same Register/Authenticate contract, selected by configuration at startup

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/asf-auth/internal/password"
	"github.com/2389/asf-auth/internal/store"
)

// Authenticator verifies credentials and creates accounts. The engine is
// configured with exactly one variant at startup; call sites never branch on
// which one is in use.
type Authenticator interface {
	// Register creates a new account.
	Register(ctx context.Context, email, plaintext, fullName string) (*store.User, error)

	// Authenticate verifies credentials and returns the user on success.
	// Failures are typed: ErrInvalidCredentials, ErrAccountLocked,
	// ErrAccountInactive, ErrEmailUnverified, ErrUnavailable.
	Authenticate(ctx context.Context, email, plaintext string) (*store.User, error)
}

// LocalAuthenticator is the self-hosted credential store variant: bcrypt
// verification with lockout enforcement against the local store.
type LocalAuthenticator struct {
	store           store.Store
	hasher          *password.Hasher
	maxAttempts     int
	lockoutDuration time.Duration
	requireVerified bool
	logger          *slog.Logger

	now func() time.Time // injectable for tests
}

// NewLocalAuthenticator creates the production authenticator.
func NewLocalAuthenticator(st store.Store, hasher *password.Hasher, maxAttempts int, lockoutDuration time.Duration, requireVerified bool, logger *slog.Logger) *LocalAuthenticator {
	return &LocalAuthenticator{
		store:           st,
		hasher:          hasher,
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		requireVerified: requireVerified,
		logger:          logger.With("component", "auth"),
		now:             time.Now,
	}
}

// normalizeEmail canonicalizes an address for storage and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new local account with role "user".
func (a *LocalAuthenticator) Register(ctx context.Context, email, plaintext, fullName string) (*store.User, error) {
	if err := a.hasher.CheckStrength(plaintext); err != nil {
		return nil, err
	}

	hash, err := a.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	user := &store.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		FullName:     fullName,
		Role:         store.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = withRetry(ctx, "create user", func(ctx context.Context) error {
		return a.store.CreateUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	a.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate verifies an email/password pair with lockout enforcement.
//
// Order matters: a live lockout rejects before any password work and without
// incrementing the counter; a failed password check increments the counter
// (serialized by the store) and may arm the lock for subsequent attempts.
// The lock expires lazily by time comparison on the next attempt.
func (a *LocalAuthenticator) Authenticate(ctx context.Context, email, plaintext string) (*store.User, error) {
	now := a.now()

	var user *store.User
	err := withRetry(ctx, "get user", func(ctx context.Context) error {
		var err error
		user, err = a.store.GetUserByEmail(ctx, normalizeEmail(email))
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// Burn a hash comparison so unknown emails take as long as
			// wrong passwords
			password.DummyCompare(plaintext)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.Locked(now) {
		return nil, ErrAccountLocked
	}

	if !a.hasher.Verify(plaintext, user.PasswordHash) {
		lockUntil := now.Add(a.lockoutDuration)
		res, ferr := withRetryLockout(ctx, a.store, user.ID, a.maxAttempts, lockUntil)
		if ferr != nil {
			return nil, ferr
		}
		a.logger.Info("login failed", "user_id", user.ID, "attempts", res.Attempts)
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		return nil, ErrAccountInactive
	}
	if a.requireVerified && !user.EmailVerified {
		return nil, ErrEmailUnverified
	}

	err = withRetry(ctx, "record login success", func(ctx context.Context) error {
		return a.store.RecordLoginSuccess(ctx, user.ID, now)
	})
	if err != nil {
		return nil, err
	}

	user.LoginAttempts = 0
	user.LockedUntil = nil
	ts := now.UTC()
	user.LastLogin = &ts

	a.logger.Info("login succeeded", "user_id", user.ID)
	return user, nil
}

func withRetryLockout(ctx context.Context, st store.Store, userID string, threshold int, lockUntil time.Time) (*store.LockoutResult, error) {
	var res *store.LockoutResult
	err := withRetry(ctx, "record login failure", func(ctx context.Context) error {
		var err error
		res, err = st.RecordLoginFailure(ctx, userID, threshold, lockUntil)
		return err
	})
	return res, err
}

// IdentityProvider is the seam to a hosted identity service. Implementations
// own credential policy (lockout, password rules); the engine only mirrors
// the resulting identity into the local store.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, plaintext string) (*ProviderIdentity, error)
	SignUp(ctx context.Context, email, plaintext, displayName string) (*ProviderIdentity, error)
}

// ProviderIdentity is the identity a provider reports after a successful
// sign-in or sign-up.
type ProviderIdentity struct {
	Email         string
	DisplayName   string
	EmailVerified bool
}

// ErrProviderDenied is returned by IdentityProvider implementations when
// credentials are rejected. The engine maps it to ErrInvalidCredentials.
var ErrProviderDenied = errors.New("identity provider denied credentials")

// ExternalAuthenticator delegates credential verification to an
// IdentityProvider and mirrors the identity into the local store so
// sessions, roles, and action tokens work identically to the local variant.
type ExternalAuthenticator struct {
	provider IdentityProvider
	store    store.Store
	logger   *slog.Logger

	now func() time.Time
}

// NewExternalAuthenticator creates the hosted-provider variant.
func NewExternalAuthenticator(provider IdentityProvider, st store.Store, logger *slog.Logger) *ExternalAuthenticator {
	return &ExternalAuthenticator{
		provider: provider,
		store:    st,
		logger:   logger.With("component", "auth", "provider", "external"),
		now:      time.Now,
	}
}

// Register creates the account at the provider, then mirrors it locally.
func (a *ExternalAuthenticator) Register(ctx context.Context, email, plaintext, fullName string) (*store.User, error) {
	identity, err := a.provider.SignUp(ctx, normalizeEmail(email), plaintext, fullName)
	if err != nil {
		if errors.Is(err, ErrProviderDenied) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return a.mirror(ctx, identity, fullName)
}

// Authenticate verifies credentials at the provider and returns the
// mirrored local user.
func (a *ExternalAuthenticator) Authenticate(ctx context.Context, email, plaintext string) (*store.User, error) {
	identity, err := a.provider.SignIn(ctx, normalizeEmail(email), plaintext)
	if err != nil {
		if errors.Is(err, ErrProviderDenied) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	user, err := a.mirror(ctx, identity, identity.DisplayName)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrAccountInactive
	}

	err = withRetry(ctx, "record login success", func(ctx context.Context) error {
		return a.store.RecordLoginSuccess(ctx, user.ID, a.now())
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("login succeeded", "user_id", user.ID)
	return user, nil
}

// mirror upserts a provider identity into the local store.
func (a *ExternalAuthenticator) mirror(ctx context.Context, identity *ProviderIdentity, fullName string) (*store.User, error) {
	var user *store.User
	err := withRetry(ctx, "get user", func(ctx context.Context) error {
		var err error
		user, err = a.store.GetUserByEmail(ctx, identity.Email)
		return err
	})
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}

	now := a.now().UTC()
	user = &store.User{
		ID:            uuid.NewString(),
		Email:         identity.Email,
		PasswordHash:  "", // provider owns the credential
		FullName:      fullName,
		Role:          store.RoleUser,
		Active:        true,
		EmailVerified: identity.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = withRetry(ctx, "create user", func(ctx context.Context) error {
		return a.store.CreateUser(ctx, user)
	})
	if err != nil && !errors.Is(err, store.ErrEmailTaken) {
		return nil, err
	}
	return user, nil
}

// StaticProvider is an IdentityProvider backed by a fixed credential table,
// covering the original demo deployment mode. Any password-bypass behavior
// lives here, behind the Authenticator boundary; the lockout and token
// paths never see it.
type StaticProvider struct {
	credentials map[string]string // email -> password
	acceptAny   bool
}

// NewStaticProvider creates a provider with a fixed email->password table.
func NewStaticProvider(credentials map[string]string) *StaticProvider {
	return &StaticProvider{credentials: credentials}
}

// NewAcceptAnyProvider creates a provider that accepts every credential
// pair. Demo and test use only.
func NewAcceptAnyProvider() *StaticProvider {
	return &StaticProvider{credentials: map[string]string{}, acceptAny: true}
}

// SignIn checks the fixed table.
func (p *StaticProvider) SignIn(ctx context.Context, email, plaintext string) (*ProviderIdentity, error) {
	if p.acceptAny {
		return &ProviderIdentity{Email: email, EmailVerified: true}, nil
	}
	want, ok := p.credentials[email]
	if !ok || want != plaintext {
		return nil, ErrProviderDenied
	}
	return &ProviderIdentity{Email: email, EmailVerified: true}, nil
}

// SignUp rejects unknown accounts; the static table is fixed at startup.
func (p *StaticProvider) SignUp(ctx context.Context, email, plaintext, displayName string) (*ProviderIdentity, error) {
	if p.acceptAny {
		return &ProviderIdentity{Email: email, DisplayName: displayName, EmailVerified: true}, nil
	}
	return nil, ErrProviderDenied
}

// ABOUTME: End-to-end scenario tests running the full service against real SQLite
// ABOUTME: Exercises lockout, sliding sessions, and token flows through actual SQL persistence

package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/asf-auth/internal/store"
	"github.com/2389/asf-auth/internal/token"
)

func newSQLiteService(t *testing.T) (*Service, store.Store, *fakeClock) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clock := newFakeClock()
	return newTestService(t, st, clock), st, clock
}

func TestScenarioLockoutLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, st, clock := newSQLiteService(t)

	user, err := svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err = svc.Authenticate(ctx, "a@b.com", "wrong-pass", ClientMeta{})
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}

	// Sixth attempt hits the armed lock even with the right password.
	_, err = svc.Authenticate(ctx, "a@b.com", "pw123456", ClientMeta{})
	require.ErrorIs(t, err, ErrAccountLocked)

	got, err := st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.LoginAttempts)
	require.NotNil(t, got.LockedUntil)

	// The lock expires by time comparison alone.
	clock.Advance(31 * time.Minute)
	sess, err := svc.Authenticate(ctx, "a@b.com", "pw123456", ClientMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	got, err = st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.LoginAttempts)
	assert.Nil(t, got.LockedUntil)
}

func TestScenarioConcurrentFailures(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newSQLiteService(t)

	user, err := svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Authenticate(ctx, "a@b.com", "wrong-pass", ClientMeta{})
		}()
	}
	wg.Wait()

	// Attempts that raced past the lock check all land on the counter;
	// attempts that observed the armed lock are refused without counting.
	got, err := st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.LoginAttempts, 5)
	assert.LessOrEqual(t, got.LoginAttempts, 8)
	assert.NotNil(t, got.LockedUntil)
}

func TestScenarioSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newSQLiteService(t)

	_, err := svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)

	sess, err := svc.Authenticate(ctx, "a@b.com", "pw123456", ClientMeta{IP: "10.0.0.1", UserAgent: "cli"})
	require.NoError(t, err)

	// Regular activity keeps the window sliding past the original deadline.
	for i := 0; i < 3; i++ {
		clock.Advance(45 * time.Minute)
		_, err = svc.ValidateSession(ctx, sess.Token)
		require.NoError(t, err, "touch %d", i+1)
	}

	// Silence past the TTL expires it.
	clock.Advance(61 * time.Minute)
	_, err = svc.ValidateSession(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestScenarioSessionOutlivesTokenClaim(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newSQLiteService(t)

	// Back-date the whole flow so the token's exp claim is already in the
	// past by wall-clock time. An active session must not care: the stored
	// row's sliding window decides, not the claim minted at login.
	clock.Advance(-100 * time.Minute)
	_, err := svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)
	sess, err := svc.Authenticate(ctx, "a@b.com", "pw123456", ClientMeta{})
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	_, err = svc.ValidateSession(ctx, sess.Token)
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	claims, err := svc.ValidateSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", claims.Email)

	// Idle time past the window still expires it.
	clock.Advance(61 * time.Minute)
	_, err = svc.ValidateSession(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestScenarioLogoutThenValidate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSQLiteService(t)

	_, err := svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)
	sess, err := svc.Authenticate(ctx, "a@b.com", "pw123456", ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, sess.Token))
	_, err = svc.ValidateSession(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestScenarioVerifyEmailTwice(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newSQLiteService(t)

	user, err := svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)

	at, err := svc.RequestEmailVerification(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, svc.VerifyEmail(ctx, at.Token))
	err = svc.VerifyEmail(ctx, at.Token)
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)

	got, err := st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
}

func TestScenarioResetTokenWindow(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newSQLiteService(t)

	_, err := svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)

	at, err := svc.RequestPasswordReset(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, at)

	clock.Advance(59 * time.Minute)
	require.NoError(t, svc.ResetPassword(ctx, at.Token, "newpw12345"))

	at, err = svc.RequestPasswordReset(ctx, "a@b.com")
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	err = svc.ResetPassword(ctx, at.Token, "newerpw123")
	assert.ErrorIs(t, err, ErrTokenExpired)

	// The expired attempt did not consume the credential change.
	_, err = svc.Authenticate(ctx, "a@b.com", "newpw12345", ClientMeta{})
	assert.NoError(t, err)
}

func TestScenarioConcurrentTokenConsume(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSQLiteService(t)

	user, err := svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)

	at, err := svc.RequestEmailVerification(ctx, user.ID)
	require.NoError(t, err)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.VerifyEmail(ctx, at.Token)
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrTokenAlreadyUsed)
		}
	}
	assert.Equal(t, 1, wins, "exactly one consumer should win")
}

func TestScenarioRoleGate(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newSQLiteService(t)

	user, err := svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)

	sess, err := svc.Authenticate(ctx, "a@b.com", "pw123456", ClientMeta{})
	require.NoError(t, err)
	claims, err := svc.ValidateSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.RequireRole(claims, store.RoleAdmin), ErrForbidden)

	// Promotion takes effect on the next issued token, not the live one.
	require.NoError(t, st.SetUserRole(ctx, user.ID, store.RoleAdmin))
	claims, err = svc.ValidateSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.RequireRole(claims, store.RoleAdmin), ErrForbidden)

	sess2, err := svc.Authenticate(ctx, "a@b.com", "pw123456", ClientMeta{})
	require.NoError(t, err)
	claims, err = svc.ValidateSession(ctx, sess2.Token)
	require.NoError(t, err)
	assert.NoError(t, svc.RequireRole(claims, store.RoleAdmin))
}

func TestScenarioSweeperPurges(t *testing.T) {
	ctx := context.Background()
	svc, st, clock := newSQLiteService(t)

	user, err := svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)
	sess, err := svc.Authenticate(ctx, "a@b.com", "pw123456", ClientMeta{})
	require.NoError(t, err)
	_, err = svc.RequestEmailVerification(ctx, user.ID)
	require.NoError(t, err)

	// Session expired 1h, token 24h; purge anything older than two days.
	clock.Advance(72 * time.Hour)
	n, err := st.DeleteExpiredSessions(ctx, clock.Now().Add(-retention))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = st.DeleteExpiredActionTokens(ctx, clock.Now().Add(-retention))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = st.GetSession(ctx, sess.Token)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestScenarioJWTSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "auth.db")

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	clock := newFakeClock()
	svc := newTestService(t, st, clock)

	_, err = svc.Register(ctx, "a@b.com", "pw123456", "Ada")
	require.NoError(t, err)
	sess, err := svc.Authenticate(ctx, "a@b.com", "pw123456", ClientMeta{})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// A fresh process with the same secret and database accepts the token.
	st2, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st2.Close() })
	svc2 := newTestService(t, st2, clock)

	claims, err := svc2.ValidateSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", claims.Email)

	// A different secret rejects it outright.
	issuer, err := token.NewIssuer([]byte("another-secret-0123456789abcdef012345"))
	require.NoError(t, err)
	_, err = issuer.Verify(sess.Token)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

// ABOUTME: Mock Store implementation for testing
// ABOUTME: In-memory maps guarded by a mutex, preserving the atomicity guarantees of the interface

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing. All operations
// run under one mutex, which trivially satisfies the serialization
// requirements of the interface (lockout counter, token consumption).
type MockStore struct {
	mu         sync.Mutex
	users      map[string]*User        // keyed by user ID
	emailIndex map[string]string       // keyed by email -> user ID
	sessions   map[string]*Session     // keyed by session token
	tokens     map[string]*ActionToken // keyed by action token string

	// FailWith, when set, is returned by every operation. Used to test
	// fail-closed behavior on storage outage.
	FailWith error
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:      make(map[string]*User),
		emailIndex: make(map[string]string),
		sessions:   make(map[string]*Session),
		tokens:     make(map[string]*ActionToken),
	}
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	if _, exists := m.emailIndex[user.Email]; exists {
		return ErrEmailTaken
	}

	// Make a copy to avoid external modification
	u := *user
	m.users[u.ID] = &u
	m.emailIndex[u.Email] = u.ID
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	return m.getUserLocked(id)
}

func (m *MockStore) getUserLocked(id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

// GetUserByEmail retrieves a user by email.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	id, ok := m.emailIndex[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return m.getUserLocked(id)
}

// UpdateUserPassword replaces a user's password hash.
func (m *MockStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return m.mutateUser(id, func(u *User) {
		u.PasswordHash = passwordHash
	})
}

// SetUserRole changes a user's role.
func (m *MockStore) SetUserRole(ctx context.Context, id string, role Role) error {
	return m.mutateUser(id, func(u *User) {
		u.Role = role
	})
}

// SetUserActive toggles the active flag.
func (m *MockStore) SetUserActive(ctx context.Context, id string, active bool) error {
	return m.mutateUser(id, func(u *User) {
		u.Active = active
	})
}

// MarkEmailVerified sets the email-verified flag.
func (m *MockStore) MarkEmailVerified(ctx context.Context, id string) error {
	return m.mutateUser(id, func(u *User) {
		u.EmailVerified = true
	})
}

func (m *MockStore) mutateUser(id string, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// ListUsers returns all users ordered by creation time.
func (m *MockStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// DeleteUser removes a user and cascades to sessions and action tokens.
func (m *MockStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(m.emailIndex, u.Email)
	delete(m.users, id)

	for token, sess := range m.sessions {
		if sess.UserID == id {
			delete(m.sessions, token)
		}
	}
	for token, at := range m.tokens {
		if at.UserID == id {
			delete(m.tokens, token)
		}
	}
	return nil
}

// RecordLoginFailure increments the attempts counter under the store mutex.
func (m *MockStore) RecordLoginFailure(ctx context.Context, userID string, threshold int, lockUntil time.Time) (*LockoutResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	u.LoginAttempts++
	u.UpdatedAt = time.Now().UTC()
	if u.LoginAttempts >= threshold {
		until := lockUntil.UTC()
		u.LockedUntil = &until
	}

	out := &LockoutResult{Attempts: u.LoginAttempts}
	if u.LockedUntil != nil {
		until := *u.LockedUntil
		out.LockedUntil = &until
	}
	return out, nil
}

// RecordLoginSuccess resets the counter and stamps last_login.
func (m *MockStore) RecordLoginSuccess(ctx context.Context, userID string, now time.Time) error {
	return m.mutateUser(userID, func(u *User) {
		u.LoginAttempts = 0
		u.LockedUntil = nil
		ts := now.UTC()
		u.LastLogin = &ts
	})
}

// CreateSession stores a new session.
func (m *MockStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	sess := *session
	m.sessions[sess.Token] = &sess
	return nil
}

// GetSession retrieves a session by token regardless of state.
func (m *MockStore) GetSession(ctx context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	sess, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := *sess
	return &out, nil
}

// TouchSession extends a live session, mirroring the guarded UPDATE of the
// SQLite implementation.
func (m *MockStore) TouchSession(ctx context.Context, token string, now, expiresAt time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	sess, ok := m.sessions[token]
	if !ok || !sess.Active || !now.Before(sess.ExpiresAt) {
		return nil, ErrSessionNotFound
	}

	sess.ExpiresAt = expiresAt.UTC()
	sess.LastActivity = now.UTC()
	out := *sess
	return &out, nil
}

// RevokeSession marks a session inactive. Idempotent.
func (m *MockStore) RevokeSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	if sess, ok := m.sessions[token]; ok {
		sess.Active = false
	}
	return nil
}

// RevokeUserSessions marks all of a user's sessions inactive.
func (m *MockStore) RevokeUserSessions(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	for _, sess := range m.sessions {
		if sess.UserID == userID {
			sess.Active = false
		}
	}
	return nil
}

// DeleteExpiredSessions removes sessions expired before the cutoff.
func (m *MockStore) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}

	n := 0
	for token, sess := range m.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// CreateActionToken stores a new action token.
func (m *MockStore) CreateActionToken(ctx context.Context, token *ActionToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	at := *token
	m.tokens[at.Token] = &at
	return nil
}

// GetActionToken retrieves an action token.
func (m *MockStore) GetActionToken(ctx context.Context, token string) (*ActionToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	at, ok := m.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	out := *at
	return &out, nil
}

// ConsumeActionToken validates and consumes a token at most once. The check
// and the flag flip happen under the same mutex hold, so concurrent calls
// cannot both succeed.
func (m *MockStore) ConsumeActionToken(ctx context.Context, token string, purpose TokenPurpose, now time.Time) (*ActionToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	at, ok := m.tokens[token]
	if !ok || at.Purpose != purpose {
		return nil, ErrTokenNotFound
	}
	if at.Consumed {
		return nil, ErrTokenConsumed
	}
	if !now.Before(at.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	at.Consumed = true
	out := *at
	return &out, nil
}

// DeleteExpiredActionTokens removes tokens expired before the cutoff.
func (m *MockStore) DeleteExpiredActionTokens(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}

	n := 0
	for token, at := range m.tokens {
		if at.ExpiresAt.Before(before) {
			delete(m.tokens, token)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

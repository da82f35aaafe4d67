// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/session/token persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys (required for cascade delete of sessions/tokens)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			email          TEXT NOT NULL UNIQUE,
			password_hash  TEXT NOT NULL,
			full_name      TEXT NOT NULL DEFAULT '',
			role           TEXT NOT NULL DEFAULT 'user',
			active         INTEGER NOT NULL DEFAULT 1,
			email_verified INTEGER NOT NULL DEFAULT 0,
			login_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until   TEXT,
			last_login     TEXT,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			token         TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			ip            TEXT NOT NULL DEFAULT '',
			user_agent    TEXT NOT NULL DEFAULT '',
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,
			expires_at    TEXT NOT NULL,
			last_activity TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user_id
			ON sessions(user_id);

		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at
			ON sessions(expires_at);

		CREATE TABLE IF NOT EXISTS action_tokens (
			token      TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			purpose    TEXT NOT NULL,
			issued_at  TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			consumed   INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_action_tokens_user_id
			ON action_tokens(user_id);

		CREATE INDEX IF NOT EXISTS idx_action_tokens_expires_at
			ON action_tokens(expires_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// formatTime renders a timestamp the way every column stores it. RFC3339 in
// UTC compares lexicographically, so expiry checks can happen in SQL.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, full_name, role, active,
			email_verified, login_attempts, locked_until, last_login, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.Role,
		user.Active,
		user.EmailVerified,
		user.LoginAttempts,
		formatTimePtr(user.LockedUntil),
		formatTimePtr(user.LastLogin),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("creating user: %w", err)
	}

	s.logger.Debug("created user", "user_id", user.ID)
	return nil
}

const userColumns = `id, email, password_hash, full_name, role, active,
	email_verified, login_attempts, locked_until, last_login, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var lockedUntil, lastLogin sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&u.Role,
		&u.Active,
		&u.EmailVerified,
		&u.LoginAttempts,
		&lockedUntil,
		&lastLogin,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if u.LockedUntil, err = parseTimePtr(lockedUntil); err != nil {
		return nil, fmt.Errorf("parsing locked_until: %w", err)
	}
	if u.LastLogin, err = parseTimePtr(lastLogin); err != nil {
		return nil, fmt.Errorf("parsing last_login: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &u, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return user, nil
}

// UpdateUserPassword replaces a user's password hash.
func (s *SQLiteStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return s.updateUser(ctx, id, `password_hash = ?`, passwordHash)
}

// SetUserRole changes a user's role.
func (s *SQLiteStore) SetUserRole(ctx context.Context, id string, role Role) error {
	return s.updateUser(ctx, id, `role = ?`, role)
}

// SetUserActive toggles the active flag.
func (s *SQLiteStore) SetUserActive(ctx context.Context, id string, active bool) error {
	return s.updateUser(ctx, id, `active = ?`, active)
}

// MarkEmailVerified sets the email-verified flag.
func (s *SQLiteStore) MarkEmailVerified(ctx context.Context, id string) error {
	return s.updateUser(ctx, id, `email_verified = 1`)
}

// updateUser applies a single-column update and bumps updated_at.
func (s *SQLiteStore) updateUser(ctx context.Context, id, set string, args ...any) error {
	query := `UPDATE users SET ` + set + `, updated_at = ? WHERE id = ?`
	args = append(args, formatTime(time.Now()), id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsers returns all users ordered by creation time.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// DeleteUser removes a user. Sessions and action tokens cascade.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	s.logger.Debug("deleted user", "user_id", id)
	return nil
}

// RecordLoginFailure increments the failed-attempt counter and sets the lock
// expiry when the threshold is crossed. The increment is a single atomic
// UPDATE, so concurrent failures for the same user cannot undercount past
// the threshold; the transaction keeps the follow-up read and lock write
// consistent with it.
func (s *SQLiteStore) RecordLoginFailure(ctx context.Context, userID string, threshold int, lockUntil time.Time) (*LockoutResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET login_attempts = login_attempts + 1, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("incrementing login attempts: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrUserNotFound
	}

	var attempts int
	var lockedUntil sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT login_attempts, locked_until FROM users WHERE id = ?`, userID,
	).Scan(&attempts, &lockedUntil)
	if err != nil {
		return nil, fmt.Errorf("reading login attempts: %w", err)
	}

	out := &LockoutResult{Attempts: attempts}
	if attempts >= threshold {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET locked_until = ? WHERE id = ?`,
			formatTime(lockUntil), userID,
		); err != nil {
			return nil, fmt.Errorf("setting lock expiry: %w", err)
		}
		until := lockUntil.UTC()
		out.LockedUntil = &until
	} else if out.LockedUntil, err = parseTimePtr(lockedUntil); err != nil {
		return nil, fmt.Errorf("parsing locked_until: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	if out.LockedUntil != nil && attempts == threshold {
		s.logger.Warn("account locked", "user_id", userID, "attempts", attempts, "until", out.LockedUntil)
	}
	return out, nil
}

// RecordLoginSuccess resets the attempts counter, clears the lock, and
// stamps last_login.
func (s *SQLiteStore) RecordLoginSuccess(ctx context.Context, userID string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET login_attempts = 0, locked_until = NULL, last_login = ?, updated_at = ? WHERE id = ?`,
		formatTime(now), formatTime(now), userID,
	)
	if err != nil {
		return fmt.Errorf("recording login success: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateSession inserts a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (token, user_id, ip, user_agent, active, created_at, expires_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.Token,
		session.UserID,
		session.IP,
		session.UserAgent,
		session.Active,
		formatTime(session.CreatedAt),
		formatTime(session.ExpiresAt),
		formatTime(session.LastActivity),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "user_id", session.UserID)
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	var createdAt, expiresAt, lastActivity string

	err := row.Scan(
		&sess.Token,
		&sess.UserID,
		&sess.IP,
		&sess.UserAgent,
		&sess.Active,
		&createdAt,
		&expiresAt,
		&lastActivity,
	)
	if err != nil {
		return nil, err
	}

	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if sess.LastActivity, err = parseTime(lastActivity); err != nil {
		return nil, fmt.Errorf("parsing last_activity: %w", err)
	}

	return &sess, nil
}

const sessionColumns = `token, user_id, ip, user_agent, active, created_at, expires_at, last_activity`

// GetSession retrieves a session by token regardless of state. Callers
// decide how to treat revoked or expired rows.
func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return sess, nil
}

// TouchSession extends a live session's expiry and updates last_activity in
// one guarded UPDATE. A session that is revoked or already past its expiry
// is never extended, so a racing revoke cannot be undone by a touch.
func (s *SQLiteStore) TouchSession(ctx context.Context, token string, now, expiresAt time.Time) (*Session, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ?, last_activity = ? WHERE token = ? AND active = 1 AND expires_at > ?`,
		formatTime(expiresAt), formatTime(now), token, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("touching session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrSessionNotFound
	}

	return s.GetSession(ctx, token)
}

// RevokeSession marks a session inactive. Idempotent: revoking a missing or
// already-revoked session succeeds silently.
func (s *SQLiteStore) RevokeSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET active = 0 WHERE token = ?`, token,
	); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// RevokeUserSessions marks all of a user's sessions inactive.
func (s *SQLiteStore) RevokeUserSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET active = 0 WHERE user_id = ?`, userID,
	); err != nil {
		return fmt.Errorf("revoking user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions whose expiry is before the cutoff.
// Housekeeping only; expiry is enforced lazily on every touch.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, formatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(rows), nil
}

// CreateActionToken inserts a new action token.
func (s *SQLiteStore) CreateActionToken(ctx context.Context, token *ActionToken) error {
	query := `
		INSERT INTO action_tokens (token, user_id, purpose, issued_at, expires_at, consumed)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		token.Token,
		token.UserID,
		token.Purpose,
		formatTime(token.IssuedAt),
		formatTime(token.ExpiresAt),
		token.Consumed,
	)
	if err != nil {
		return fmt.Errorf("creating action token: %w", err)
	}

	s.logger.Debug("created action token", "user_id", token.UserID, "purpose", token.Purpose)
	return nil
}

func scanActionToken(row interface{ Scan(...any) error }) (*ActionToken, error) {
	var at ActionToken
	var issuedAt, expiresAt string

	err := row.Scan(
		&at.Token,
		&at.UserID,
		&at.Purpose,
		&issuedAt,
		&expiresAt,
		&at.Consumed,
	)
	if err != nil {
		return nil, err
	}

	if at.IssuedAt, err = parseTime(issuedAt); err != nil {
		return nil, fmt.Errorf("parsing issued_at: %w", err)
	}
	if at.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}

	return &at, nil
}

// GetActionToken retrieves an action token by its opaque string.
func (s *SQLiteStore) GetActionToken(ctx context.Context, token string) (*ActionToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, purpose, issued_at, expires_at, consumed FROM action_tokens WHERE token = ?`,
		token,
	)

	at, err := scanActionToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("getting action token: %w", err)
	}
	return at, nil
}

// ConsumeActionToken validates and consumes an action token atomically.
// The consumed flag is flipped with a compare-and-set UPDATE, so two
// concurrent calls on the same token succeed at most once; the loser sees
// ErrTokenConsumed. A consumed token stays consumed regardless of expiry.
func (s *SQLiteStore) ConsumeActionToken(ctx context.Context, token string, purpose TokenPurpose, now time.Time) (*ActionToken, error) {
	at, err := s.GetActionToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if at.Purpose != purpose {
		// Wrong purpose is indistinguishable from an unknown token to the caller
		return nil, ErrTokenNotFound
	}
	if at.Consumed {
		return nil, ErrTokenConsumed
	}
	if !now.Before(at.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE action_tokens SET consumed = 1 WHERE token = ? AND consumed = 0`, token,
	)
	if err != nil {
		return nil, fmt.Errorf("consuming action token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		// Lost the race to a concurrent consume
		return nil, ErrTokenConsumed
	}

	at.Consumed = true
	s.logger.Debug("consumed action token", "user_id", at.UserID, "purpose", at.Purpose)
	return at, nil
}

// DeleteExpiredActionTokens removes tokens whose expiry is before the cutoff.
func (s *SQLiteStore) DeleteExpiredActionTokens(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM action_tokens WHERE expires_at < ?`, formatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired action tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(rows), nil
}

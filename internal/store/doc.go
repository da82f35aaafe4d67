// Package store provides persistent storage for the auth engine using SQLite.
//
// # Architecture
//
// The store is a single Store interface covering the three entities the
// engine owns:
//
//   - User: credential record with lockout counters and verification flags
//   - Session: server-side login record with sliding expiry
//   - ActionToken: single-use token for email verification and password reset
//
// Two implementations exist: SQLiteStore (production) and MockStore
// (in-memory, for tests and as a reference for the required semantics).
//
// # Atomicity Guarantees
//
// The engine's concurrency model pushes its serialization points into the
// store, so any backend must provide:
//
//   - RecordLoginFailure: the increment-compare-lock sequence for one user
//     runs serialized (SQLite: one transaction; mock: one mutex hold), so
//     concurrent failed logins cannot undercount past the lock threshold.
//   - ConsumeActionToken: compare-and-set on the consumed flag; at most one
//     of any number of concurrent calls succeeds.
//   - TouchSession: a guarded UPDATE that never extends a revoked or
//     already-expired session, so a touch racing a revoke cannot resurrect
//     the session.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Foreign keys give cascade delete: removing a user removes its sessions
// and action tokens. Timestamps are stored as RFC3339 UTC strings, which
// compare lexicographically, so expiry cutoffs are evaluated in SQL.
//
// # Error Handling
//
// Common errors:
//
//   - ErrUserNotFound / ErrSessionNotFound / ErrTokenNotFound
//   - ErrEmailTaken: unique email constraint violated
//   - ErrTokenConsumed / ErrTokenExpired: action token state failures
//
// All methods accept context.Context for cancellation support.
package store

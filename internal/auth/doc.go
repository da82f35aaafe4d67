// Package auth implements the authentication and session security engine.
//
// # Overview
//
// The engine owns credential verification, account lockout, session
// lifecycle, and single-use action tokens. Everything else — UI, API
// transport, email delivery — is a collaborator that calls in or is called
// out to.
//
// # Authenticator Variants
//
// Credential verification is a polymorphic capability selected at startup:
//
//   - LocalAuthenticator: self-hosted credential store, bcrypt verification,
//     lockout enforcement (5 failures arm a 30-minute lock by default).
//   - ExternalAuthenticator: delegates to an IdentityProvider (a hosted
//     identity service or the StaticProvider demo table) and mirrors the
//     identity into the local store.
//
// Both satisfy the same Register/Authenticate contract, so call sites never
// branch on the deployment mode. Demo-mode behavior lives entirely inside
// StaticProvider; the lockout and token paths contain no bypasses.
//
// # Sessions
//
// A session moves one way through its states:
//
//	Active --timeout elapsed--> Expired   (terminal)
//	Active --explicit logout--> Revoked   (terminal)
//
// ValidateSession slides the expiry window forward on every use, so an
// active user stays logged in indefinitely while an hour of idle time ends
// the session. Revocation is immediate and idempotent. The session token is
// a signed JWT (see the token package); the session row is the source of
// truth for revocation, so logout takes effect before the JWT's own expiry.
//
// # Action Tokens
//
// Email verification (24h TTL) and password reset (1h TTL) use opaque
// single-use tokens persisted server-side. Consumption is at-most-once even
// under concurrent use of the same link; the loser of the race sees
// ErrTokenAlreadyUsed. The engine issues tokens; sending the email is the
// caller's job (see the mailer package).
//
// # Role Checks
//
// Roles are flat. RequireRole succeeds on exact match or when the held role
// explicitly lists the wanted role in its superset table — admin covers
// manager and user because the table says so, not because of any implied
// hierarchy.
//
// # Failure Behavior
//
// Every operation returns a typed error; InvalidCredentials and
// AccountLocked must be rendered identically to end users. Storage
// operations are retried a bounded number of times and then fail closed
// with ErrUnavailable.
package auth

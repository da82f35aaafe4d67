// ABOUTME: Package documentation for httpapi
// ABOUTME: Describes the v1 JSON API surface and its security posture

// Package httpapi exposes the auth service as a JSON API under /v1.
//
// # Routes
//
// Public:
//
//	POST /v1/register                  create an account, send verification mail
//	POST /v1/login                     exchange credentials for a session token
//	POST /v1/password-reset/request    mail a single-use reset link
//	POST /v1/password-reset/confirm    set a new password with a reset token
//	POST /v1/verify-email/confirm      mark an address verified
//
// Authenticated (Authorization: Bearer <token>):
//
//	GET  /v1/session                   describe the current session
//	POST /v1/logout                    revoke the current session
//	POST /v1/verify-email/request      re-send the verification mail
//
// Admin (role admin):
//
//	GET  /v1/admin/users               list accounts
//	POST /v1/admin/users/{id}/role     change an account's role
//	POST /v1/admin/users/{id}/deactivate  disable an account and end its sessions
//
// # Security posture
//
// Login responses never reveal whether an address exists or whether the
// account is locked: invalid credentials and a locked account return the
// same 401 body. Password-reset requests return 202 for known and unknown
// addresses alike. Login attempts are rate limited per client IP on top of
// the per-account lockout the service enforces.
package httpapi

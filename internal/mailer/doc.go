// ABOUTME: Package documentation for mailer
// ABOUTME: Describes template rendering and the available transports

// Package mailer renders and delivers the account emails: address
// verification and password reset.
//
// # Templates
//
// Templates are markdown with text/template interpolation. Each message is
// rendered twice from the same source: the raw markdown becomes the
// text/plain part, and a goldmark pass produces the text/html part. Keeping
// one source guarantees the two parts never drift.
//
// # Transports
//
// Two Mailer implementations exist:
//
//   - LogMailer writes the message to the log. Development and demo
//     deployments use it; the action link in the log line is clickable.
//   - SMTPMailer sends multipart/alternative mail through a relay with
//     PLAIN auth (or none, for trusted-network relays).
//
// Delivery failures are the caller's concern: the auth service treats a
// failed send as a failed operation rather than silently dropping the
// token it minted.
package mailer

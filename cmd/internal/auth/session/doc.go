// Package session implements server-side login sessions.
//
// A session is identified by an opaque random token held by the client in a
// cookie. Stores only see the token hash (see cmd/security/token). Expiry is
// fixed at creation: 24h by default, 30d for remember-me logins. Every
// successful validation records last activity, and an explicit sweep removes
// expired records.
//
// Manager holds the policy. Store implementations (memory, JSON file,
// PostgreSQL, Redis) only move records.
package session

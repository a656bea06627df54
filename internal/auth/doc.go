// Package auth implements identity and session management: user accounts,
// bcrypt credential hashing with configurable password policies, signed JWT
// access tokens, and opaque store-backed refresh sessions.
//
// Access tokens are short-lived and validated by signature alone (no database
// hit). Refresh tokens are 256-bit random values stored hashed in SQLite and
// revocable with immediate effect. The two artifacts share no secret
// material, so compromise of one cannot forge the other.
package auth

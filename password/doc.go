// Package password hashes and verifies user passwords.
//
// Two implementations satisfy [Hasher]: [Bcrypt] (the default, cost fixed at
// construction) and [Argon2] (PHC-encoded argon2id). Both compare in constant
// time and report whether a stored hash was produced with weaker parameters
// than the current configuration, so callers can re-hash after a successful
// login.
//
// This package never stores passwords and never logs them. Length policy is
// enforced here only as hard byte bounds; product rules (character sets, reuse)
// belong to the caller.
package password

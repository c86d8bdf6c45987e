// Package credential owns user records keyed by phone identity.
//
// A [Store] composes a [Repository] (persistence) with a password.Hasher so
// that plaintext passwords are hashed before they reach storage and are never
// returned. Adapters live in credential/postgres and credential/memory.
package credential

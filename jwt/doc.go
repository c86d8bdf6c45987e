// Package jwt signs and verifies the access and refresh tokens handed to clients.
//
// Both token kinds are compact JWTs carrying the owning user id and a "typ"
// claim. Refresh tokens additionally carry the session id (sid) they are bound
// to. Verification failures are reported as [ErrTokenExpired] or
// [ErrTokenInvalid] only; library error values never cross this boundary.
package jwt

// Package middleware guards HTTP handlers with phoneauth tokens.
//
//   - [Guard] verifies an access token offline and attaches its claims.
//   - [RequireRefreshSession] verifies a refresh token and requires its
//     session to be active, without consuming it.
//
// Rejections are JSON bodies: 401 {"error":"token expired"} or
// {"error":"invalid token"}, and 503 when the session store is unreachable.
// The wrapped handler never runs on rejection.
package middleware

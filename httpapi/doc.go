// Package httpapi serves the phoneauth engine over HTTP with a chi router.
//
// Tokens are returned in the JSON body and as HttpOnly cookies: access_token
// on path "/" and refresh_token on path "/auth/session", which covers only the
// refresh, logout and session-list routes. Refresh accepts the refresh token
// from the cookie, the X-Refresh-Token header or the JSON body.
package httpapi

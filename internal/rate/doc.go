// Package rate implements the Redis fixed-window throttles used by login and
// refresh.
//
// A window starts at the first hit (INCR, then EXPIRE when the count is 1) and
// lasts for the configured cooldown. Key shapes, under a configurable prefix:
//
//	<p>:rl:<countryCode><phone>|<ip>   failed logins per identity and client IP
//	<p>:rr:<sid>                       refresh attempts per session id
package rate

package internaldefs

import (
	"github.com/MrEthical07/phoneauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   phoneauth.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram for export.
type HistogramDef struct {
	ID   phoneauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: phoneauth.MetricSignupSuccess, Name: "phoneauth_signup_success_total", Help: "Successful signups, including claimed provisional accounts."},
	{ID: phoneauth.MetricSignupFailure, Name: "phoneauth_signup_failure_total", Help: "Failed signups."},
	{ID: phoneauth.MetricSignupDuplicate, Name: "phoneauth_signup_duplicate_total", Help: "Signups rejected because the phone identity already has a password."},
	{ID: phoneauth.MetricInviteRejected, Name: "phoneauth_invite_rejected_total", Help: "Signups rejected by the invite gate."},
	{ID: phoneauth.MetricLoginSuccess, Name: "phoneauth_login_success_total", Help: "Successful login attempts."},
	{ID: phoneauth.MetricLoginFailure, Name: "phoneauth_login_failure_total", Help: "Failed login attempts."},
	{ID: phoneauth.MetricLoginRateLimited, Name: "phoneauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: phoneauth.MetricRefreshSuccess, Name: "phoneauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: phoneauth.MetricRefreshFailure, Name: "phoneauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: phoneauth.MetricRefreshReuseDetected, Name: "phoneauth_refresh_reuse_detected_total", Help: "Refresh tokens presented after their session was retired."},
	{ID: phoneauth.MetricRefreshRateLimited, Name: "phoneauth_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: phoneauth.MetricSessionCreated, Name: "phoneauth_session_created_total", Help: "Created sessions."},
	{ID: phoneauth.MetricSessionInvalidated, Name: "phoneauth_session_invalidated_total", Help: "Blacklisted sessions."},
	{ID: phoneauth.MetricLogout, Name: "phoneauth_logout_total", Help: "Single-session logout operations."},
	{ID: phoneauth.MetricLogoutAll, Name: "phoneauth_logout_all_total", Help: "Logout-all operations."},
	{ID: phoneauth.MetricPasswordChangeSuccess, Name: "phoneauth_password_change_success_total", Help: "Successful password changes."},
	{ID: phoneauth.MetricPasswordChangeInvalidOld, Name: "phoneauth_password_change_invalid_old_total", Help: "Password change attempts with a wrong current password."},
	{ID: phoneauth.MetricBackendError, Name: "phoneauth_backend_error_total", Help: "Operations failed by a store outage or timeout."},
}

var HistogramDefs = []HistogramDef{
	{ID: phoneauth.MetricSignupLatency, Name: "phoneauth_signup_latency_seconds", Help: "Signup latency histogram."},
	{ID: phoneauth.MetricLoginLatency, Name: "phoneauth_login_latency_seconds", Help: "Login latency histogram."},
	{ID: phoneauth.MetricRefreshLatency, Name: "phoneauth_refresh_latency_seconds", Help: "Refresh latency histogram."},
	{ID: phoneauth.MetricValidateLatency, Name: "phoneauth_validate_latency_seconds", Help: "Access token validation latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's eight latency buckets
// in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-slot array, zero-filling a
// short or missing snapshot.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

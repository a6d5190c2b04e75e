package internaldefs

import "github.com/vitadrop/vitaauth"

// Def names one engine metric for export.
type Def struct {
	ID   vitaauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []Def{
	{vitaauth.MetricLoginSuccess, "vitaauth_login_success_total", "Successful logins."},
	{vitaauth.MetricLoginFailure, "vitaauth_login_failure_total", "Failed logins."},
	{vitaauth.MetricLoginRateLimited, "vitaauth_login_rate_limited_total", "Logins rejected by the throttle."},
	{vitaauth.MetricRegisterSuccess, "vitaauth_register_success_total", "Successful registrations."},
	{vitaauth.MetricRegisterDuplicate, "vitaauth_register_duplicate_total", "Registrations rejected for a taken email."},
	{vitaauth.MetricRefreshSuccess, "vitaauth_refresh_success_total", "Successful refreshes."},
	{vitaauth.MetricRefreshFailure, "vitaauth_refresh_failure_total", "Failed refreshes."},
	{vitaauth.MetricRefreshReuseDetected, "vitaauth_refresh_reuse_detected_total", "Refresh tokens presented after being superseded."},
	{vitaauth.MetricRefreshRateLimited, "vitaauth_refresh_rate_limited_total", "Refreshes rejected by the throttle."},
	{vitaauth.MetricRefreshRotated, "vitaauth_refresh_rotated_total", "Refreshes that rotated the refresh token."},
	{vitaauth.MetricAuthenticateSuccess, "vitaauth_authenticate_success_total", "Accepted access tokens."},
	{vitaauth.MetricAuthenticateNoToken, "vitaauth_authenticate_no_token_total", "Protected calls without a token."},
	{vitaauth.MetricAuthenticateExpired, "vitaauth_authenticate_expired_total", "Expired access tokens."},
	{vitaauth.MetricAuthenticateRejected, "vitaauth_authenticate_rejected_total", "Malformed or badly signed access tokens."},
	{vitaauth.MetricSessionCreated, "vitaauth_session_created_total", "Sessions started by login or registration."},
	{vitaauth.MetricLogout, "vitaauth_logout_total", "Logouts."},
	{vitaauth.MetricStoreUnavailable, "vitaauth_store_unavailable_total", "Operations failed by the token or user store."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []Def{
	{vitaauth.MetricAuthenticateLatency, "vitaauth_authenticate_latency_seconds", "Authenticate latency."},
}

// AuditDropped is exported alongside the engine metrics.
var AuditDropped = Def{Name: "vitaauth_audit_dropped_total", Help: "Audit events dropped on a full buffer."}

// BucketCount matches the engine's fixed latency buckets.
const BucketCount = 8

// HistogramBounds are the "le" labels of the latency buckets, in seconds.
var HistogramBounds = [BucketCount]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
var HistogramBoundSuffix = [BucketCount]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// Cumulative turns raw per-bucket counts into running totals. Missing
// buckets count as zero and extra ones are ignored.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}

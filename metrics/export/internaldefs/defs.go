package internaldefs

import (
	"github.com/MrEthical07/kvauth"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   kvauth.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   kvauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "kvauth_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: kvauth.MetricCodeSent, Name: "kvauth_code_sent_total", Help: "One-time codes issued."},
	{ID: kvauth.MetricCodeCooldown, Name: "kvauth_code_cooldown_total", Help: "Code requests refused during the send cooldown."},
	{ID: kvauth.MetricCodeVerified, Name: "kvauth_code_verified_total", Help: "One-time codes accepted."},
	{ID: kvauth.MetricCodeRejected, Name: "kvauth_code_rejected_total", Help: "Wrong one-time codes."},
	{ID: kvauth.MetricCodeExpired, Name: "kvauth_code_expired_total", Help: "Codes checked after expiry or attempt exhaustion."},
	{ID: kvauth.MetricLoginSuccess, Name: "kvauth_login_success_total", Help: "Successful sign-ins."},
	{ID: kvauth.MetricLoginFailure, Name: "kvauth_login_failure_total", Help: "Failed sign-in attempts."},
	{ID: kvauth.MetricRateLimitHit, Name: "kvauth_rate_limit_hit_total", Help: "Requests denied by the rate limiter."},
	{ID: kvauth.MetricSessionCreated, Name: "kvauth_session_created_total", Help: "Created sessions."},
	{ID: kvauth.MetricSessionRevoked, Name: "kvauth_session_revoked_total", Help: "Sessions signed out from another device."},
	{ID: kvauth.MetricGuardRejected, Name: "kvauth_guard_rejected_total", Help: "Protected requests redirected to login."},
	{ID: kvauth.MetricLogout, Name: "kvauth_logout_total", Help: "Logouts."},
	{ID: kvauth.MetricAccountDeleted, Name: "kvauth_account_deleted_total", Help: "Deleted accounts."},
}

var HistogramDefs = []HistogramDef{
	{ID: kvauth.MetricAuthenticateLatency, Name: "kvauth_authenticate_latency_seconds", Help: "Strategy authentication latency."},
}

// HistogramBounds are the upper bounds of the latency buckets in seconds.
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

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets.
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

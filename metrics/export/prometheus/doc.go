// Package prometheus renders kvauth metrics in the Prometheus text
// exposition format.
//
// [NewExporter] accepts anything with MetricsSnapshot and AuditDropped,
// usually a [kvauth.Services], and serves kvauth_*_total counters plus the
// kvauth_authenticate_latency_seconds histogram.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate service state.
package prometheus

// Package ratelimit implements the per-client request gate used in front of
// the login and verify endpoints.
//
// # Window semantics
//
// Each identifier owns one record under "rate_limit:{identifier}" holding
// the remaining budget and the reset time. The window restarts once reset
// has passed. Every allowed request pushes reset forward by one window.
//
// # Failure policy
//
// Backend errors fail open: the request is allowed and the error is logged
// with event "rate_limit_error". A store outage must not lock everyone out.
package ratelimit

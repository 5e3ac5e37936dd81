// Package middleware exposes net/http adapters for the kvauth session
// guards and the per-IP rate limiter.
//
// # Guards
//
//   - [RequireAuthenticated] resolves the cookie to a user and session, or
//     redirects to the login page.
//   - [RequireAnonymous] keeps signed-in users away from the login pages.
//   - [RateLimit] rejects clients over their request budget with 429.
//
// Guards store the resolved [kvauth.Current] in the request context; read
// it back with [CurrentFromContext].
//
// # What this package must NOT do
//
//   - Make authentication decisions itself (the bridge does).
//   - Touch the key-value store directly.
package middleware

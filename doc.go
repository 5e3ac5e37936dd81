// Package kvauth provides passwordless authentication for web applications:
// emailed one-time codes and OAuth2 sign-in, a signed session cookie, and
// server-side session records kept in a key-value store.
//
// Build a [Services] once with [Builder] and share it between handlers. Every
// method on Services and [Bridge] is safe to call from multiple goroutines.
//
// # Architecture boundaries
//
// kvauth is the public surface. It exposes [Services], [Bridge], [Builder],
// [Config] and the value types handlers need. Strategies live under
// strategy/, storage primitives under kv/, verification/ and session/, and
// the signed cookie under cookie/. Rate limiting and audit dispatch live
// under internal/.
//
// # Request flow
//
// A login form posts to a strategy through [Bridge.Finish]. The strategy
// either interrupts with a redirect (code sent, provider consent), fails, or
// succeeds with a principal. On success the bridge stores the principal in
// the cookie and redirects home. Guards resolve the cookie against the
// session store and the [UserDirectory] on each protected request.
//
// # What this package must NOT do
//
//   - Write responses. Handlers turn the returned redirects into HTTP.
//   - Keep per-request state in Services.
//   - Import any sub-package that re-imports kvauth.
package kvauth

// Package authn defines the strategy contract, the authentication
// outcome type and the name-keyed Authenticator that dispatches to
// strategies.
//
// # Outcomes
//
// A strategy finishes in exactly one of three ways:
//
//   - Success: a [Principal] was established.
//   - Interrupt: the caller must answer with a redirect carrying the
//     attached Set-Cookie headers (for example "code sent, go to the
//     verify page"). An interrupt is not an error.
//   - Failure: a typed error from the taxonomy in errors.go.
//
// This package has no dependencies on storage or HTTP routing.
package authn

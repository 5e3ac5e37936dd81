// Package session persists server-side login sessions in a key-value
// store.
//
// # Layout
//
// Every session lives under session:{userId}:{sessionId} as a JSON
// document. The backend TTL always matches ExpiresAt, so a key that
// exists is either valid or about to be swept by the backend. Reads also
// check ExpiresAt to close the gap between the two clocks.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does NOT read
// cookies, resolve users, or decide where to redirect. Those belong to
// the bridge in the root package.
//
// # What this package must NOT do
//
//   - Import the root package or any strategy.
//   - Keep in-process session caches.
package session

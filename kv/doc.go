// Package kv defines the key-value backend contract shared by the
// verification and session stores, and a Redis implementation of it.
//
// # Contract
//
// Keys are flat strings. Values are opaque bytes with an optional
// expiry enforced by the backend. The store offers only single-key
// atomicity; callers compose read-then-write sequences themselves and
// must tolerate races between them.
//
// # What this package must NOT do
//
//   - Interpret stored values beyond the JSON helpers.
//   - Run background sweeps. Expiry belongs to the backend.
package kv

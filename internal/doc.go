// Package internal groups helpers that are private to kvauth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - ratelimit: fixed-window request limiting on the key-value store
//
// # What this package must NOT do
//
//   - Export types that appear in the public kvauth API except through
//     aliases declared in the root package.
//   - Be imported by any package outside the kvauth module.
package internal

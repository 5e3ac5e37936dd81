// Package cookie implements signed, stateless cookie sessions.
//
// A cookie carries a small key/value map encoded as an HS256 JWT. Signing
// keys are derived per cookie name from one or more secrets with HKDF:
// the first secret signs, every secret verifies, so secrets can be
// rotated by prepending a new one.
//
// A cookie that fails verification or has expired reads as an empty
// session. Callers never see a parse error; they see an anonymous user.
package cookie

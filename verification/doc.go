// Package verification issues and checks short-lived one-time codes bound
// to an identifier such as an email address.
//
// Each (type, identifier) pair owns at most one record under the key
// verification:{identifier}:{type}. A record carries the TOTP secret and
// parameters used to derive the code, an attempt counter and the time of
// the last send or verify. Records expire one period after creation.
//
// Codes are derived with a charset-based HOTP: the RFC 4226 dynamic
// truncation value is rendered in base len(charset). With a decimal
// charset the output equals the standard numeric TOTP.
package verification

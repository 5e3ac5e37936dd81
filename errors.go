package kvauth

import (
	"errors"

	"github.com/MrEthical07/kvauth/authn"
	"github.com/MrEthical07/kvauth/internal/ratelimit"
	"github.com/MrEthical07/kvauth/kv"
	"github.com/MrEthical07/kvauth/verification"
)

var (
	// ErrUserInactive is returned when a deleted or blocked user signs in.
	ErrUserInactive = errors.New("User is not active")
	// ErrLoginFailed hides user creation failures from the caller.
	ErrLoginFailed = errors.New("Login failed, please try again")
	// ErrSessionNotFound is returned by account operations for unknown or
	// expired sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCurrentSession is returned when asked to sign out the session
	// making the request.
	ErrCurrentSession = errors.New("You cannot sign out your current session")
	// ErrEmailMismatch is returned when account deletion is confirmed with
	// an address other than the account's.
	ErrEmailMismatch = errors.New("The email address you entered does not match your account's email address.")
	// ErrNoUserDirectory is returned by Build without a UserDirectory.
	ErrNoUserDirectory = errors.New("user directory required")
)

// Errors defined by the sub-packages, re-exported for callers that only
// import kvauth.
var (
	ErrAlreadyAuthenticated = authn.ErrAlreadyAuthenticated
	ErrEmailRequired        = authn.ErrEmailRequired
	ErrInvalidEmail         = authn.ErrInvalidEmail
	ErrInvalidCode          = authn.ErrInvalidCode
	ErrUnknownStrategy      = authn.ErrUnknownStrategy
	ErrExpired              = verification.ErrExpired
	ErrStoreUnavailable     = kv.ErrUnavailable
	ErrRateLimited          = ratelimit.ErrRateLimited
)

// CooldownError is returned when a code is requested too soon.
type CooldownError = verification.CooldownError

package authn

import "errors"

var (
	// ErrAlreadyAuthenticated is returned when the request already carries
	// a signed-in user.
	ErrAlreadyAuthenticated = errors.New("user already logged in")
	// ErrEmailRequired is returned when neither the form nor the pending
	// cookie supplies an email.
	ErrEmailRequired = errors.New("email is required")
	// ErrInvalidEmail is returned when the email validator rejects input.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidCode is returned for a wrong one-time code.
	ErrInvalidCode = errors.New("invalid code")
	// ErrUnknownStrategy is returned by Authenticate for unregistered names.
	ErrUnknownStrategy = errors.New("unknown authentication strategy")
	// ErrNilStrategy is returned by Use for a nil strategy.
	ErrNilStrategy = errors.New("nil authentication strategy")
)

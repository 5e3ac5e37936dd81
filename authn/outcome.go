package authn

import "fmt"

// Cookie-session keys shared by strategies and the session bridge.
const (
	// UserKey holds the signed-in Principal.
	UserKey = "auth-user"
	// PendingEmailKey holds the address awaiting a one-time code.
	PendingEmailKey = "auth:email"
)

// Principal identifies a signed-in user and their server-side session.
type Principal struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Valid reports whether both ids are present.
func (p Principal) Valid() bool {
	return p.UserID != "" && p.SessionID != ""
}

// Toast is a one-shot notice to show after a redirect.
type Toast struct {
	Title       string
	Description string
	// Type is one of message, success, error, warning, info.
	Type string
}

// Redirect is a navigational interrupt. Cookies are complete Set-Cookie
// header values to attach to the response.
type Redirect struct {
	Location string
	Cookies  []string
	Toast    *Toast
}

func (r *Redirect) String() string {
	return fmt.Sprintf("redirect to %s (%d cookies)", r.Location, len(r.Cookies))
}

// Kind tells which branch of an Outcome is populated.
type Kind uint8

const (
	KindFailure Kind = iota
	KindSuccess
	KindInterrupt
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindInterrupt:
		return "interrupt"
	default:
		return "failure"
	}
}

// Outcome is the result of one authentication attempt. Exactly one of
// Principal, Redirect or Err is set; use the constructors.
type Outcome struct {
	Principal *Principal
	Redirect  *Redirect
	Err       error
}

// Success returns an outcome carrying p.
func Success(p Principal) Outcome { return Outcome{Principal: &p} }

// Interrupt returns an outcome asking the caller to redirect.
func Interrupt(r Redirect) Outcome { return Outcome{Redirect: &r} }

// Failure returns an outcome carrying err. A nil err is reported as an
// unknown failure so the outcome never looks empty.
func Failure(err error) Outcome {
	if err == nil {
		err = fmt.Errorf("authentication failed")
	}
	return Outcome{Err: err}
}

// Kind reports which branch is set.
func (o Outcome) Kind() Kind {
	switch {
	case o.Principal != nil:
		return KindSuccess
	case o.Redirect != nil:
		return KindInterrupt
	default:
		return KindFailure
	}
}

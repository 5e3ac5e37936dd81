// Package totp implements passwordless sign-in with an emailed one-time
// code.
//
// A request without a code (or without a pending address) sends a code
// and interrupts with a redirect to the verify page, remembering the
// address in the signed cookie. A request with a code checks it against
// the pending address and, on success, hands the address to the verify
// callback which resolves the user and opens a session.
package totp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/kvauth/authn"
	"github.com/MrEthical07/kvauth/cookie"
	"github.com/MrEthical07/kvauth/verification"
	"go.uber.org/zap"
)

// Name is the strategy name used with authn.Authenticator.
const Name = "totp"

const (
	defaultVerifyPath = "/auth/verify"
	intentResend      = "resend"
)

// CodeStore issues and checks codes. *verification.Store satisfies it.
type CodeStore interface {
	Generate(ctx context.Context, t verification.Type, identifier string) (string, error)
	Verify(ctx context.Context, t verification.Type, identifier, code string) (bool, error)
}

// Delivery is what SendFunc receives.
type Delivery struct {
	Email   string
	Code    string
	Request *http.Request
	Form    url.Values
}

// SendFunc delivers a code to its recipient.
type SendFunc func(ctx context.Context, d Delivery) error

// ValidateFunc reports whether email may receive codes.
type ValidateFunc func(ctx context.Context, email string) bool

// VerifyParams is passed to VerifyFunc after a code checks out.
type VerifyParams struct {
	Email   string
	Form    url.Values
	Request *http.Request
}

// VerifyFunc resolves the user behind a verified address and opens a
// session for them.
type VerifyFunc func(ctx context.Context, p VerifyParams) (authn.Principal, error)

// Options wires the strategy's collaborators.
type Options struct {
	Codes         CodeStore
	Cookies       *cookie.Storage
	Send          SendFunc
	ValidateEmail ValidateFunc
	// Toasts, when set, turns the resend notice into a toast cookie.
	Toasts *cookie.Toasts
	// VerifyPath defaults to /auth/verify.
	VerifyPath string
	Logger     *zap.Logger
}

// Strategy is the one-time-code authn.Strategy.
type Strategy struct {
	opts   Options
	verify VerifyFunc
}

var _ authn.Strategy = (*Strategy)(nil)

// New checks the required collaborators.
func New(opts Options, verify VerifyFunc) (*Strategy, error) {
	switch {
	case opts.Codes == nil:
		return nil, errors.New("totp: code store required")
	case opts.Cookies == nil:
		return nil, errors.New("totp: cookie storage required")
	case opts.Send == nil:
		return nil, errors.New("totp: send func required")
	case opts.ValidateEmail == nil:
		return nil, errors.New("totp: validate func required")
	case verify == nil:
		return nil, errors.New("totp: verify func required")
	}
	if opts.VerifyPath == "" {
		opts.VerifyPath = defaultVerifyPath
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Strategy{opts: opts, verify: verify}, nil
}

// Name implements authn.Strategy.
func (s *Strategy) Name() string { return Name }

// Authenticate implements authn.Strategy.
func (s *Strategy) Authenticate(ctx context.Context, r *http.Request) authn.Outcome {
	sess := s.opts.Cookies.FromRequest(r)

	var current authn.Principal
	if ok, _ := sess.Get(authn.UserKey, &current); ok && current.Valid() {
		return authn.Failure(authn.ErrAlreadyAuthenticated)
	}

	if err := r.ParseForm(); err != nil {
		return authn.Failure(fmt.Errorf("totp: parse form: %w", err))
	}
	formEmail := normalizeEmail(r.PostForm.Get("email"))
	formCode := strings.TrimSpace(r.PostForm.Get("code"))
	intent := strings.TrimSpace(r.PostForm.Get("intent"))
	pending := sess.GetString(authn.PendingEmailKey)

	if pending != "" && formCode != "" {
		return s.checkCode(ctx, r, pending, formCode)
	}

	email := formEmail
	if email == "" {
		email = pending
	}
	if email == "" {
		return authn.Failure(authn.ErrEmailRequired)
	}
	if !s.opts.ValidateEmail(ctx, email) {
		return authn.Failure(authn.ErrInvalidEmail)
	}

	code, err := s.opts.Codes.Generate(ctx, verification.TypeEmail, email)
	if err != nil {
		return authn.Failure(err)
	}
	if err := s.opts.Send(ctx, Delivery{Email: email, Code: code, Request: r, Form: r.PostForm}); err != nil {
		s.opts.Logger.Error("totp delivery failed", zap.String("event", "totp_send_error"), zap.Error(err))
		return authn.Failure(err)
	}

	if intent == intentResend {
		return s.resent()
	}

	if err := sess.Set(authn.PendingEmailKey, email); err != nil {
		return authn.Failure(err)
	}
	header, err := s.opts.Cookies.Commit(sess)
	if err != nil {
		return authn.Failure(err)
	}
	return authn.Interrupt(authn.Redirect{
		Location: s.opts.VerifyPath,
		Cookies:  []string{header},
	})
}

func (s *Strategy) checkCode(ctx context.Context, r *http.Request, email, code string) authn.Outcome {
	ok, err := s.opts.Codes.Verify(ctx, verification.TypeEmail, email, code)
	if err != nil {
		return authn.Failure(err)
	}
	if !ok {
		return authn.Failure(authn.ErrInvalidCode)
	}

	p, err := s.verify(ctx, VerifyParams{Email: email, Form: r.PostForm, Request: r})
	if err != nil {
		return authn.Failure(err)
	}
	return authn.Success(p)
}

func (s *Strategy) resent() authn.Outcome {
	toast := &authn.Toast{Title: "Verification code sent", Type: string(cookie.ToastSuccess)}
	redirect := authn.Redirect{Location: s.opts.VerifyPath, Toast: toast}
	if s.opts.Toasts != nil {
		header, err := s.opts.Toasts.Header(cookie.Toast{Title: toast.Title, Type: cookie.ToastSuccess})
		if err != nil {
			return authn.Failure(err)
		}
		redirect.Cookies = []string{header}
	}
	return authn.Interrupt(redirect)
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

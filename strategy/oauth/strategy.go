// Package oauth implements sign-in through OAuth2 identity providers.
//
// The first request (no code in the query) stores a random state and a
// PKCE verifier in the signed cookie and interrupts with a redirect to the
// provider. The callback request checks the state, exchanges the code,
// loads the profile and hands it to the verify callback.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/kvauth/authn"
	"github.com/MrEthical07/kvauth/cookie"
	"golang.org/x/oauth2"
	"go.uber.org/zap"
)

const (
	// StateKey holds the pending OAuth2 state in the cookie session.
	StateKey    = "oauth2:state"
	verifierKey = "oauth2:verifier"
)

var (
	// ErrStateMismatch is returned when the callback state does not match.
	ErrStateMismatch = errors.New("oauth: state mismatch")
	// ErrProviderDenied is returned when the provider reports an error.
	ErrProviderDenied = errors.New("oauth: provider denied authorization")
	// ErrExchange wraps token exchange failures.
	ErrExchange = errors.New("oauth: code exchange failed")
)

// VerifyParams is passed to VerifyFunc once a profile is loaded.
type VerifyParams struct {
	Profile Profile
	Token   *oauth2.Token
	Request *http.Request
}

// VerifyFunc resolves the user for a provider profile and opens a session.
type VerifyFunc func(ctx context.Context, p VerifyParams) (authn.Principal, error)

// Options wires a Strategy.
type Options struct {
	Provider Provider
	Cookies  *cookie.Storage
	// HTTPClient is used for token exchange and profile calls.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Strategy is an authn.Strategy for one provider.
type Strategy struct {
	opts   Options
	verify VerifyFunc
}

var _ authn.Strategy = (*Strategy)(nil)

// New validates opts.
func New(opts Options, verify VerifyFunc) (*Strategy, error) {
	if opts.Provider.Name == "" || opts.Provider.Config == nil || opts.Provider.Profile == nil {
		return nil, errors.New("oauth: incomplete provider")
	}
	if opts.Cookies == nil {
		return nil, errors.New("oauth: cookie storage required")
	}
	if verify == nil {
		return nil, errors.New("oauth: verify func required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Strategy{opts: opts, verify: verify}, nil
}

// Name returns the provider name.
func (s *Strategy) Name() string { return s.opts.Provider.Name }

// Authenticate implements authn.Strategy.
func (s *Strategy) Authenticate(ctx context.Context, r *http.Request) authn.Outcome {
	sess := s.opts.Cookies.FromRequest(r)

	var current authn.Principal
	if ok, _ := sess.Get(authn.UserKey, &current); ok && current.Valid() {
		return authn.Failure(authn.ErrAlreadyAuthenticated)
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return authn.Failure(fmt.Errorf("%w: %s", ErrProviderDenied, e))
	}
	code := q.Get("code")
	if code == "" {
		return s.begin(sess)
	}

	stored := sess.GetString(StateKey)
	got := q.Get("state")
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(got)) != 1 {
		return authn.Failure(ErrStateMismatch)
	}

	if s.opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.opts.HTTPClient)
	}
	cfg := s.opts.Provider.Config

	var exchangeOpts []oauth2.AuthCodeOption
	if v := sess.GetString(verifierKey); v != "" {
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(v))
	}
	tok, err := cfg.Exchange(ctx, code, exchangeOpts...)
	if err != nil {
		s.opts.Logger.Warn("oauth exchange failed",
			zap.String("event", "oauth_exchange_error"),
			zap.String("provider", s.Name()),
			zap.Error(err),
		)
		return authn.Failure(fmt.Errorf("%w: %v", ErrExchange, err))
	}

	profile, err := s.opts.Provider.Profile(ctx, cfg.Client(ctx, tok))
	if err != nil {
		return authn.Failure(err)
	}
	profile.Provider = s.Name()
	if profile.Email == "" {
		return authn.Failure(fmt.Errorf("%w for %s authentication", authn.ErrEmailRequired, s.Name()))
	}

	p, err := s.verify(ctx, VerifyParams{Profile: profile, Token: tok, Request: r})
	if err != nil {
		return authn.Failure(err)
	}
	return authn.Success(p)
}

func (s *Strategy) begin(sess *cookie.Session) authn.Outcome {
	state, err := randomState()
	if err != nil {
		return authn.Failure(err)
	}
	verifier := oauth2.GenerateVerifier()
	if err := sess.Set(StateKey, state); err != nil {
		return authn.Failure(err)
	}
	if err := sess.Set(verifierKey, verifier); err != nil {
		return authn.Failure(err)
	}
	header, err := s.opts.Cookies.Commit(sess)
	if err != nil {
		return authn.Failure(err)
	}
	return authn.Interrupt(authn.Redirect{
		Location: s.opts.Provider.Config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		Cookies:  []string{header},
	})
}

// ClearState removes the pending state from sess after a callback.
func ClearState(sess *cookie.Session) {
	sess.Unset(StateKey)
	sess.Unset(verifierKey)
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("oauth: state entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrEthical07/kvauth/authn"
	"github.com/MrEthical07/kvauth/cookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	server     *httptest.Server
	user       map[string]any
	emails     []map[string]any
	tokenCalls int
	verifiers  []string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		fp.tokenCalls++
		fp.verifiers = append(fp.verifiers, r.PostForm.Get("code_verifier"))
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(fp.user)
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(fp.emails)
	})
	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) endpoints() *Endpoints {
	return &Endpoints{
		Auth:     fp.server.URL + "/authorize",
		Token:    fp.server.URL + "/token",
		UserInfo: fp.server.URL + "/user",
		Emails:   fp.server.URL + "/emails",
	}
}

type harness struct {
	strategy *Strategy
	cookies  *cookie.Storage
	profiles []Profile
}

func newHarness(t *testing.T, provider Provider) *harness {
	t.Helper()
	cookies, err := cookie.NewStorage(cookie.Options{Name: "__auth-session", Secrets: []string{"oauth-test-secret-0123456789"}})
	require.NoError(t, err)
	h := &harness{cookies: cookies}
	h.strategy, err = New(Options{Provider: provider, Cookies: cookies}, func(_ context.Context, p VerifyParams) (authn.Principal, error) {
		h.profiles = append(h.profiles, p.Profile)
		return authn.Principal{UserID: "user-" + p.Profile.ID, SessionID: "sess-1"}, nil
	})
	require.NoError(t, err)
	return h
}

func get(target string, setCookies ...string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	for _, c := range setCookies {
		rec.Header().Add("Set-Cookie", c)
	}
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

// begin runs the first leg and returns the state and the cookie header.
func (h *harness) begin(t *testing.T) (string, string) {
	t.Helper()
	out := h.strategy.Authenticate(context.Background(), get("/auth/google"))
	require.Equal(t, authn.KindInterrupt, out.Kind(), "err: %v", out.Err)
	require.Len(t, out.Redirect.Cookies, 1)

	loc, err := url.Parse(out.Redirect.Location)
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "S256", loc.Query().Get("code_challenge_method"))
	assert.NotEmpty(t, loc.Query().Get("code_challenge"))
	return state, out.Redirect.Cookies[0]
}

func TestBeginRedirectsToProviderAndStoresState(t *testing.T) {
	fp := newFakeProvider(t)
	h := newHarness(t, Google("client-1", "secret-1", "http://app.test/auth/google/callback", fp.endpoints()))

	state, header := h.begin(t)

	sess := h.cookies.FromRequest(get("/", header))
	assert.Equal(t, state, sess.GetString(StateKey))
	assert.NotEmpty(t, sess.GetString(verifierKey))
	assert.Zero(t, fp.tokenCalls)
}

func TestGoogleCallbackSucceeds(t *testing.T) {
	fp := newFakeProvider(t)
	fp.user = map[string]any{"sub": "g-42", "email": "ada@example.com", "name": "Ada", "picture": "https://img/ada"}
	h := newHarness(t, Google("client-1", "secret-1", "http://app.test/cb", fp.endpoints()))
	state, header := h.begin(t)

	out := h.strategy.Authenticate(context.Background(), get("/cb?code=good-code&state="+state, header))

	require.Equal(t, authn.KindSuccess, out.Kind(), "err: %v", out.Err)
	assert.Equal(t, "user-g-42", out.Principal.UserID)
	require.Len(t, h.profiles, 1)
	assert.Equal(t, Profile{Provider: "google", ID: "g-42", Email: "ada@example.com", DisplayName: "Ada", AvatarURL: "https://img/ada"}, h.profiles[0])
	require.Len(t, fp.verifiers, 1)
	assert.NotEmpty(t, fp.verifiers[0])
}

func TestGitHubFallsBackToPrimaryEmail(t *testing.T) {
	fp := newFakeProvider(t)
	fp.user = map[string]any{"id": 7, "login": "octo", "avatar_url": "https://img/octo"}
	fp.emails = []map[string]any{
		{"email": "old@example.com", "primary": false, "verified": true},
		{"email": "octo@example.com", "primary": true, "verified": true},
	}
	h := newHarness(t, GitHub("client-1", "secret-1", "http://app.test/cb", fp.endpoints()))
	state, header := h.begin(t)

	out := h.strategy.Authenticate(context.Background(), get("/cb?code=good-code&state="+state, header))

	require.Equal(t, authn.KindSuccess, out.Kind(), "err: %v", out.Err)
	require.Len(t, h.profiles, 1)
	assert.Equal(t, "octo@example.com", h.profiles[0].Email)
	assert.Equal(t, "octo", h.profiles[0].DisplayName)
	assert.Equal(t, "7", h.profiles[0].ID)
}

func TestMissingEmailFails(t *testing.T) {
	fp := newFakeProvider(t)
	fp.user = map[string]any{"id": 7, "login": "octo"}
	h := newHarness(t, GitHub("client-1", "secret-1", "http://app.test/cb", fp.endpoints()))
	state, header := h.begin(t)

	out := h.strategy.Authenticate(context.Background(), get("/cb?code=good-code&state="+state, header))

	require.Equal(t, authn.KindFailure, out.Kind())
	assert.True(t, errors.Is(out.Err, authn.ErrEmailRequired))
	assert.Contains(t, out.Err.Error(), "github")
	assert.Empty(t, h.profiles)
}

func TestStateMismatchFails(t *testing.T) {
	fp := newFakeProvider(t)
	h := newHarness(t, Google("client-1", "secret-1", "http://app.test/cb", fp.endpoints()))
	_, header := h.begin(t)

	out := h.strategy.Authenticate(context.Background(), get("/cb?code=good-code&state=forged", header))
	assert.ErrorIs(t, out.Err, ErrStateMismatch)

	out = h.strategy.Authenticate(context.Background(), get("/cb?code=good-code&state=anything"))
	assert.ErrorIs(t, out.Err, ErrStateMismatch)
	assert.Zero(t, fp.tokenCalls)
}

func TestProviderErrorParamFails(t *testing.T) {
	fp := newFakeProvider(t)
	h := newHarness(t, Google("client-1", "secret-1", "http://app.test/cb", fp.endpoints()))

	out := h.strategy.Authenticate(context.Background(), get("/cb?error=access_denied"))

	assert.ErrorIs(t, out.Err, ErrProviderDenied)
	assert.Contains(t, out.Err.Error(), "access_denied")
}

func TestExchangeFailure(t *testing.T) {
	fp := newFakeProvider(t)
	h := newHarness(t, Google("client-1", "secret-1", "http://app.test/cb", fp.endpoints()))
	state, header := h.begin(t)

	out := h.strategy.Authenticate(context.Background(), get("/cb?code=bad-code&state="+state, header))

	assert.ErrorIs(t, out.Err, ErrExchange)
	assert.Empty(t, h.profiles)
}

func TestSignedInUserIsRejected(t *testing.T) {
	fp := newFakeProvider(t)
	h := newHarness(t, Google("client-1", "secret-1", "http://app.test/cb", fp.endpoints()))
	sess := cookie.NewSession()
	require.NoError(t, sess.Set(authn.UserKey, authn.Principal{UserID: "u", SessionID: "s"}))
	header, err := h.cookies.Commit(sess)
	require.NoError(t, err)

	out := h.strategy.Authenticate(context.Background(), get("/auth/google", header))

	assert.ErrorIs(t, out.Err, authn.ErrAlreadyAuthenticated)
}

func TestClearState(t *testing.T) {
	sess := cookie.NewSession()
	require.NoError(t, sess.Set(StateKey, "s"))
	require.NoError(t, sess.Set(verifierKey, "v"))
	ClearState(sess)
	assert.True(t, sess.Empty())
}

func TestNewValidates(t *testing.T) {
	cookies, err := cookie.NewStorage(cookie.Options{Name: "c", Secrets: []string{"oauth-test-secret-0123456789"}})
	require.NoError(t, err)
	verify := func(context.Context, VerifyParams) (authn.Principal, error) { return authn.Principal{}, nil }

	_, err = New(Options{Cookies: cookies}, verify)
	assert.Error(t, err)
	_, err = New(Options{Provider: Google("a", "b", "c", nil)}, verify)
	assert.Error(t, err)
	_, err = New(Options{Provider: Google("a", "b", "c", nil), Cookies: cookies}, nil)
	assert.Error(t, err)
	s, err := New(Options{Provider: GitHub("a", "b", "c", nil), Cookies: cookies}, verify)
	require.NoError(t, err)
	assert.Equal(t, "github", s.Name())
}

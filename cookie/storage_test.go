package cookie

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const (
	secretA = "0123456789abcdef-secret-a"
	secretB = "0123456789abcdef-secret-b"
)

func newTestStorage(t *testing.T, clock *fakeClock, secrets ...string) *Storage {
	t.Helper()
	s, err := NewStorage(Options{
		Name:    "__auth-session",
		Secrets: secrets,
		MaxAge:  15 * 24 * time.Hour,
	}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return s
}

// requestWith builds a request carrying the cookie from a Set-Cookie value.
func requestWith(t *testing.T, setCookie string) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	rec.Header().Add("Set-Cookie", setCookie)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

type authUser struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

func TestCommitRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := newTestStorage(t, clock, secretA)

	sess := NewSession()
	if err := sess.Set("auth:email", "a@b.co"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := sess.Set("auth-user", authUser{UserID: "u1", SessionID: "s1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	header, err := s.Commit(sess)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	for _, attr := range []string{"__auth-session=", "Path=/", "HttpOnly", "SameSite=Lax", "Max-Age=1296000"} {
		if !strings.Contains(header, attr) {
			t.Fatalf("missing %q in %q", attr, header)
		}
	}

	got := s.FromRequest(requestWith(t, header))
	if got.GetString("auth:email") != "a@b.co" {
		t.Fatalf("expected pending email, got keys %v", got.Keys())
	}
	var u authUser
	if ok, err := got.Get("auth-user", &u); !ok || err != nil || u.SessionID != "s1" {
		t.Fatalf("unexpected auth-user: %+v ok=%v err=%v", u, ok, err)
	}
}

func TestGetSessionFromHeader(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := newTestStorage(t, clock, secretA)

	sess := NewSession()
	_ = sess.Set("k", "v")
	header, _ := s.Commit(sess)
	value := strings.SplitN(strings.SplitN(header, ";", 2)[0], "=", 2)[1]

	got := s.GetSession("theme=dark; __auth-session=" + value)
	if got.GetString("k") != "v" {
		t.Fatalf("expected value from raw header, got %v", got.Keys())
	}
	if !s.GetSession("").Empty() {
		t.Fatal("empty header must give empty session")
	}
}

func TestTamperedCookieReadsEmpty(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := newTestStorage(t, clock, secretA)

	sess := NewSession()
	_ = sess.Set("auth-user", authUser{UserID: "u1", SessionID: "s1"})
	header, _ := s.Commit(sess)
	req := requestWith(t, header)
	c, _ := req.Cookie("__auth-session")

	forged := httptest.NewRequest(http.MethodGet, "/", nil)
	forged.AddCookie(&http.Cookie{Name: "__auth-session", Value: c.Value[:len(c.Value)-2] + "xx"})
	if !s.FromRequest(forged).Empty() {
		t.Fatal("tampered cookie must read as empty")
	}
}

func TestOtherSecretRejectedAndRotationAccepted(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	oldStorage := newTestStorage(t, clock, secretA)

	sess := NewSession()
	_ = sess.Set("k", "v")
	header, _ := oldStorage.Commit(sess)

	if !newTestStorage(t, clock, secretB).FromRequest(requestWith(t, header)).Empty() {
		t.Fatal("cookie signed with another secret must be rejected")
	}

	rotated := newTestStorage(t, clock, secretB, secretA)
	if rotated.FromRequest(requestWith(t, header)).GetString("k") != "v" {
		t.Fatal("old secret must still verify after rotation")
	}
}

func TestExpiredCookieReadsEmpty(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := newTestStorage(t, clock, secretA)

	sess := NewSession()
	_ = sess.Set("k", "v")
	header, _ := s.Commit(sess)

	clock.Advance(16 * 24 * time.Hour)
	if !s.FromRequest(requestWith(t, header)).Empty() {
		t.Fatal("expired cookie must read as empty")
	}
}

func TestDestroyExpiresCookie(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := newTestStorage(t, clock, secretA)

	header := s.Destroy()
	if !strings.HasPrefix(header, "__auth-session=;") || !strings.Contains(header, "Max-Age=0") {
		t.Fatalf("unexpected destroy header %q", header)
	}
}

func TestNewStorageValidation(t *testing.T) {
	if _, err := NewStorage(Options{Secrets: []string{secretA}}); !errors.Is(err, ErrNoName) {
		t.Fatalf("expected ErrNoName, got %v", err)
	}
	if _, err := NewStorage(Options{Name: "x", Secrets: []string{"short"}}); !errors.Is(err, ErrNoSecrets) {
		t.Fatalf("expected ErrNoSecrets, got %v", err)
	}
}

func TestKeysAreScopedToCookieName(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	a, _ := NewStorage(Options{Name: "a", Secrets: []string{secretA}}, WithClock(clock.Now))
	b, _ := NewStorage(Options{Name: "b", Secrets: []string{secretA}}, WithClock(clock.Now))

	sess := NewSession()
	_ = sess.Set("k", "v")
	header, _ := a.Commit(sess)
	value := strings.SplitN(strings.SplitN(header, ";", 2)[0], "=", 2)[1]

	if !b.GetSession("b=" + value).Empty() {
		t.Fatal("a value signed for one cookie must not verify under another name")
	}
}

func TestFlashIsReadOnce(t *testing.T) {
	sess := NewSession()
	if err := sess.Flash("notice", "hi"); err != nil {
		t.Fatalf("Flash: %v", err)
	}
	if !sess.Has("notice") {
		t.Fatal("flash should be visible before read")
	}
	if sess.GetString("notice") != "hi" {
		t.Fatal("expected flash value")
	}
	if sess.Has("notice") || sess.GetString("notice") != "" {
		t.Fatal("flash must disappear after first read")
	}
}

func TestUnsetRemovesKey(t *testing.T) {
	sess := NewSession()
	_ = sess.Set("auth:email", "a@b.co")
	sess.Unset("auth:email")
	if sess.Has("auth:email") {
		t.Fatal("expected key removed")
	}
}

package kvauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/kvauth/authn"
	"github.com/MrEthical07/kvauth/mailer"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// memDirectory is an in-memory UserDirectory.
type memDirectory struct {
	mu        sync.Mutex
	users     map[string]*User
	providers map[string]map[string]string
	createErr error
	updates   int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		users:     map[string]*User{},
		providers: map[string]map[string]string{},
	}
}

func (d *memDirectory) add(u User, provider string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := u
	d.users[u.ID] = &cp
	d.providers[u.ID] = map[string]string{provider: u.ID}
}

func (d *memDirectory) setStatus(id string, st UserStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id].Status = st
}

func (d *memDirectory) FindUserByEmail(_ context.Context, email string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *memDirectory) FindUserByID(_ context.Context, id string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (d *memDirectory) UsernameTaken(_ context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (d *memDirectory) CreateUser(_ context.Context, nu NewUser) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return "", d.createErr
	}
	for _, u := range d.users {
		if u.Email == nu.Email {
			return "", errors.New("duplicate email")
		}
	}
	d.users[nu.ID] = &User{
		ID:          nu.ID,
		Username:    nu.Username,
		DisplayName: nu.DisplayName,
		Email:       nu.Email,
		AvatarURL:   nu.AvatarURL,
		Status:      UserActive,
	}
	d.providers[nu.ID] = map[string]string{nu.Provider: nu.ProviderAccountID}
	return nu.ID, nil
}

func (d *memDirectory) UpdateProfile(_ context.Context, userID, displayName, avatarURL string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return errors.New("no such user")
	}
	u.DisplayName = displayName
	u.AvatarURL = avatarURL
	d.updates++
	return nil
}

func (d *memDirectory) HasProvider(_ context.Context, userID, provider string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.providers[userID][provider]
	return ok, nil
}

func (d *memDirectory) LinkProvider(_ context.Context, userID, provider, accountID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.providers[userID] == nil {
		d.providers[userID] = map[string]string{}
	}
	d.providers[userID][provider] = accountID
	return nil
}

func (d *memDirectory) DeleteUser(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, userID)
	delete(d.providers, userID)
	return nil
}

// outbox records rendered messages.
type outbox struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

// lastCode pulls the code from the subject "Your <site> login code is <code>".
func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs, "no mail sent")
	subject := o.msgs[len(o.msgs)-1].Subject
	return subject[strings.LastIndexByte(subject, ' ')+1:]
}

type fixture struct {
	svc  *Services
	mr   *miniredis.Miniredis
	dir  *memDirectory
	mail *outbox
	sink *auditRecorder
}

// auditRecorder collects audit events synchronously.
type auditRecorder struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *auditRecorder) Emit(_ context.Context, ev AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *auditRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Environment = "test"
	cfg.Session.Secrets = []string{"test-secret-0123456789abcdef"}
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	return cfg
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	f := &fixture{mr: mr, dir: newMemDirectory(), mail: &outbox{}, sink: &auditRecorder{}}
	svc, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(f.dir).
		WithSender(f.mail).
		WithEmailValidator(func(context.Context, string) bool { return true }).
		WithAuditSink(f.sink).
		Build()
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

// post builds a form POST carrying the cookies set by earlier responses.
func post(path string, form url.Values, setCookies ...string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("User-Agent", "test-agent")
	r.RemoteAddr = "10.0.0.1:5555"
	addCookies(r, setCookies...)
	return r
}

func get(path string, setCookies ...string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = "10.0.0.1:5555"
	addCookies(r, setCookies...)
	return r
}

func addCookies(r *http.Request, setCookies ...string) {
	for _, raw := range setCookies {
		c, err := http.ParseSetCookie(raw)
		if err != nil || c.MaxAge < 0 {
			continue
		}
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

// signIn runs the emailed-code flow for email and returns the session
// cookie set on success.
func (f *fixture) signIn(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()

	redirect := f.svc.Bridge.Finish(ctx, "totp", post("/auth/login", url.Values{"email": {email}}))
	require.Equal(t, f.svc.Config.Routes.Verify, redirect.Location)
	require.Len(t, redirect.Cookies, 1)

	redirect = f.svc.Bridge.Finish(ctx, "totp", post("/auth/verify", url.Values{"code": {f.mail.lastCode(t)}}, redirect.Cookies...))
	require.Equal(t, f.svc.Config.Routes.Home, redirect.Location, "sign in failed: %+v", redirect.Toast)
	require.Len(t, redirect.Cookies, 1)
	return redirect.Cookies[0]
}

func principalOf(t *testing.T, svc *Services, setCookie string) authn.Principal {
	t.Helper()
	var p authn.Principal
	ok, err := svc.Cookies.FromRequest(get("/", setCookie)).Get(authn.UserKey, &p)
	require.NoError(t, err)
	require.True(t, ok)
	return p
}

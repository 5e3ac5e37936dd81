package kvauth

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/kvauth/authn"
	"github.com/MrEthical07/kvauth/cookie"
	"github.com/MrEthical07/kvauth/session"
	"github.com/MrEthical07/kvauth/strategy/oauth"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Current is the signed-in user and the session the request belongs to.
type Current struct {
	User    *User
	Session *session.Session
}

// Bridge connects the signed cookie to the server-side session records and
// the user directory. It turns authentication outcomes into responses and
// guards routes.
type Bridge struct {
	s *Services
}

// Authenticate runs the named strategy, recording latency and the login
// counters.
func (b *Bridge) Authenticate(ctx context.Context, provider string, r *http.Request) authn.Outcome {
	start := time.Now()
	out := b.s.Authenticator.Authenticate(ctx, provider, r)
	b.s.Metrics.Observe(MetricAuthenticateLatency, time.Since(start))

	switch out.Kind() {
	case authn.KindSuccess:
		b.s.Metrics.Inc(MetricLoginSuccess)
		b.s.emit(ctx, AuditEvent{
			EventType: AuditLoginSuccess,
			Provider:  provider,
			UserID:    out.Principal.UserID,
			SessionID: out.Principal.SessionID,
			IP:        ClientIP(r),
			Success:   true,
		})
	case authn.KindFailure:
		b.s.Metrics.Inc(MetricLoginFailure)
		b.s.emit(ctx, AuditEvent{
			EventType: AuditLoginFailure,
			Provider:  provider,
			IP:        ClientIP(r),
			Error:     errString(out.Err),
		})
	}
	return out
}

// HandleAuthSuccess authenticates with provider and, on success, commits
// the principal to the cookie. Interrupts are returned as the redirect to
// follow. Failures are returned as errors for HandleAuthError.
func (b *Bridge) HandleAuthSuccess(ctx context.Context, provider string, r *http.Request) (*authn.Redirect, error) {
	out := b.Authenticate(ctx, provider, r)
	switch out.Kind() {
	case authn.KindInterrupt:
		return out.Redirect, nil
	case authn.KindSuccess:
		return b.CommitAuthSuccess(r, *out.Principal)
	default:
		return nil, out.Err
	}
}

// CommitAuthSuccess stores p in the cookie, drops the pending email and
// OAuth state, and redirects home.
func (b *Bridge) CommitAuthSuccess(r *http.Request, p authn.Principal) (*authn.Redirect, error) {
	sess := b.s.Cookies.FromRequest(r)
	sess.Unset(authn.PendingEmailKey)
	oauth.ClearState(sess)
	if err := sess.Set(authn.UserKey, p); err != nil {
		return nil, err
	}
	header, err := b.s.Cookies.Commit(sess)
	if err != nil {
		return nil, err
	}
	return &authn.Redirect{Location: b.s.Config.Routes.Home, Cookies: []string{header}}, nil
}

// HandleAuthError logs err and redirects to the login page with an error
// toast carrying its message.
func (b *Bridge) HandleAuthError(ctx context.Context, provider string, err error) *authn.Redirect {
	b.s.Logger.Warn("authentication failed",
		zap.String("event", "auth_login_error"),
		zap.String("provider", provider),
		zap.Error(err),
	)
	title := "Authentication failed"
	if err != nil {
		title = err.Error()
	}
	return b.redirectWithToast(b.s.Config.Routes.Login, cookie.Toast{Title: title, Type: cookie.ToastError})
}

// Finish combines HandleAuthSuccess and HandleAuthError: it always returns
// a redirect to send.
func (b *Bridge) Finish(ctx context.Context, provider string, r *http.Request) *authn.Redirect {
	redirect, err := b.HandleAuthSuccess(ctx, provider, r)
	if err != nil {
		return b.HandleAuthError(ctx, provider, err)
	}
	return redirect
}

// QuerySession resolves the signed-in user for r. It returns (nil, false,
// nil) without a cookie principal, and (nil, true, nil) when the cookie
// names a session or user that no longer checks out.
func (b *Bridge) QuerySession(ctx context.Context, r *http.Request) (*Current, bool, error) {
	var p authn.Principal
	ok, err := b.s.Cookies.FromRequest(r).Get(authn.UserKey, &p)
	if err != nil || !ok || !p.Valid() {
		return nil, err != nil || ok, nil
	}

	var (
		user *User
		sess *session.Session
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := b.s.Users.FindUserByID(gctx, p.UserID)
		user = u
		return err
	})
	g.Go(func() error {
		s, err := b.s.Sessions.Get(gctx, p.UserID, p.SessionID)
		sess = s
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	if !user.Active() || !sess.Valid(b.s.now()) {
		return nil, true, nil
	}
	return &Current{User: user, Session: sess}, false, nil
}

// RequireAuthenticated returns the current user, or a redirect to the
// login page that also clears the cookie.
func (b *Bridge) RequireAuthenticated(ctx context.Context, r *http.Request) (*Current, *authn.Redirect, error) {
	cur, _, err := b.QuerySession(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	if cur != nil {
		return cur, nil, nil
	}
	b.s.Metrics.Inc(MetricGuardRejected)
	b.s.emit(ctx, AuditEvent{EventType: AuditGuardRejected, IP: ClientIP(r), Metadata: map[string]string{"path": r.URL.Path}})
	return nil, &authn.Redirect{
		Location: b.s.Config.Routes.Login,
		Cookies:  []string{b.s.Cookies.Destroy()},
	}, nil
}

// RequireAnonymous returns nil when r carries no session. A signed-in
// request is sent home; a stale cookie is cleared and sent to the root.
func (b *Bridge) RequireAnonymous(ctx context.Context, r *http.Request) (*authn.Redirect, error) {
	cur, stale, err := b.QuerySession(ctx, r)
	switch {
	case err != nil:
		return nil, err
	case cur != nil:
		return &authn.Redirect{Location: b.s.Config.Routes.Home}, nil
	case stale:
		return &authn.Redirect{
			Location: b.s.Config.Routes.Root,
			Cookies:  []string{b.s.Cookies.Destroy()},
		}, nil
	}
	return nil, nil
}

// Logout deletes the server-side session named by the cookie, clears the
// cookie and redirects to the login page.
func (b *Bridge) Logout(ctx context.Context, r *http.Request) (*authn.Redirect, error) {
	var p authn.Principal
	if ok, _ := b.s.Cookies.FromRequest(r).Get(authn.UserKey, &p); ok && p.Valid() {
		if err := b.s.Sessions.Delete(ctx, p.UserID, p.SessionID); err != nil {
			return nil, err
		}
		b.s.Metrics.Inc(MetricLogout)
		b.s.emit(ctx, AuditEvent{
			EventType: AuditLogout,
			UserID:    p.UserID,
			SessionID: p.SessionID,
			IP:        ClientIP(r),
			Success:   true,
		})
	}
	return &authn.Redirect{
		Location: b.s.Config.Routes.Login,
		Cookies:  []string{b.s.Cookies.Destroy()},
	}, nil
}

// PendingEmail returns the address awaiting a code. Without one it returns
// a redirect to the login page.
func (b *Bridge) PendingEmail(r *http.Request) (string, *authn.Redirect) {
	email := b.s.Cookies.FromRequest(r).GetString(authn.PendingEmailKey)
	if email == "" {
		return "", &authn.Redirect{Location: b.s.Config.Routes.Login}
	}
	return email, nil
}

// Toast returns the pending notice on r and the Set-Cookie value that
// consumes it.
func (b *Bridge) Toast(r *http.Request) (*cookie.Toast, string) {
	return b.s.Toasts.Read(r)
}

// RedirectWithToast builds a redirect to location that flashes t.
// Additional Set-Cookie values are sent first.
func (b *Bridge) RedirectWithToast(location string, t cookie.Toast, cookies ...string) (*authn.Redirect, error) {
	header, err := b.s.Toasts.Header(t)
	if err != nil {
		return nil, err
	}
	return &authn.Redirect{
		Location: location,
		Cookies:  append(cookies, header),
		Toast:    &authn.Toast{Title: t.Title, Description: t.Description, Type: string(t.Type)},
	}, nil
}

func (b *Bridge) redirectWithToast(location string, t cookie.Toast, cookies ...string) *authn.Redirect {
	redirect, err := b.RedirectWithToast(location, t, cookies...)
	if err != nil {
		b.s.Logger.Error("toast encode failed", zap.Error(err))
		return &authn.Redirect{Location: location, Cookies: cookies}
	}
	return redirect
}

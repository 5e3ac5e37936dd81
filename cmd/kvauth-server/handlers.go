package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/kvauth"
	"github.com/MrEthical07/kvauth/cookie"
	"github.com/MrEthical07/kvauth/middleware"
	"github.com/MrEthical07/kvauth/strategy/totp"
	"go.uber.org/zap"
)

type server struct {
	svc     *kvauth.Services
	metrics http.Handler
}

type metricsHandler interface {
	Handler() http.Handler
}

func newServer(svc *kvauth.Services, exporter metricsHandler) *server {
	return &server{svc: svc, metrics: exporter.Handler()}
}

func (s *server) routes() http.Handler {
	anon := middleware.RequireAnonymous(s.svc)
	authed := middleware.RequireAuthenticated(s.svc)
	limited := middleware.RateLimit(s.svc)
	routes := s.svc.Config.Routes

	mux := http.NewServeMux()
	mux.Handle("GET "+routes.Login, anon(http.HandlerFunc(s.loginPage)))
	mux.Handle("POST "+routes.Login, limited(anon(s.finish(totp.Name))))
	mux.Handle("GET "+routes.Verify, anon(http.HandlerFunc(s.verifyPage)))
	mux.Handle("POST "+routes.Verify, limited(anon(s.finish(totp.Name))))
	mux.Handle("GET /auth/{provider}", limited(anon(s.finishProvider())))
	mux.Handle("GET /auth/{provider}/callback", anon(s.finishProvider()))
	mux.HandleFunc("POST /auth/logout", s.logout)

	mux.Handle("GET "+routes.Home, authed(http.HandlerFunc(s.homePage)))
	mux.Handle("POST /account/sessions/others/delete", authed(http.HandlerFunc(s.signOutOthers)))
	mux.Handle("POST /account/sessions/{id}/delete", authed(http.HandlerFunc(s.signOutSession)))
	mux.Handle("POST /account/delete", authed(http.HandlerFunc(s.deleteAccount)))

	if routes.Root == "/" {
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, routes.Login, http.StatusSeeOther)
		})
	}
	mux.Handle("GET /metrics", s.metrics)
	mux.HandleFunc("GET /healthz", s.healthz)
	return mux
}

func (s *server) finish(provider string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteRedirect(w, r, s.svc.Bridge.Finish(r.Context(), provider, r))
	})
}

func (s *server) finishProvider() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")
		if _, ok := s.svc.Authenticator.Strategy(provider); !ok || provider == totp.Name {
			http.NotFound(w, r)
			return
		}
		middleware.WriteRedirect(w, r, s.svc.Bridge.Finish(r.Context(), provider, r))
	})
}

func (s *server) loginPage(w http.ResponseWriter, r *http.Request) {
	var providers []string
	for _, name := range s.svc.Authenticator.Names() {
		if name != totp.Name {
			providers = append(providers, name)
		}
	}
	s.render(w, r, "login", loginData{
		Site:      s.svc.Config.SiteName,
		Action:    s.svc.Config.Routes.Login,
		Providers: providers,
	})
}

func (s *server) verifyPage(w http.ResponseWriter, r *http.Request) {
	email, redirect := s.svc.Bridge.PendingEmail(r)
	if redirect != nil {
		middleware.WriteRedirect(w, r, redirect)
		return
	}
	s.render(w, r, "verify", verifyData{
		Site:   s.svc.Config.SiteName,
		Action: s.svc.Config.Routes.Verify,
		Email:  email,
	})
}

func (s *server) homePage(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFromContext(r.Context())
	sessions, err := s.svc.ListSessions(r.Context(), cur)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.render(w, r, "home", homeData{
		Site:     s.svc.Config.SiteName,
		User:     cur.User,
		Sessions: sessions,
	})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	redirect, err := s.svc.Bridge.Logout(r.Context(), r)
	if err != nil {
		s.fail(w, err)
		return
	}
	middleware.WriteRedirect(w, r, redirect)
}

func (s *server) signOutSession(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFromContext(r.Context())
	err := s.svc.SignOutSession(r.Context(), cur, r.PathValue("id"))
	s.backHome(w, r, err, "Session signed out")
}

func (s *server) signOutOthers(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFromContext(r.Context())
	err := s.svc.SignOutOtherSessions(r.Context(), cur)
	s.backHome(w, r, err, "Other sessions signed out")
}

func (s *server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	redirect, err := s.svc.DeleteAccount(r.Context(), cur, r.PostForm.Get("email"))
	if err != nil {
		s.backHome(w, r, err, "")
		return
	}
	middleware.WriteRedirect(w, r, redirect)
}

// backHome redirects to the home page with a toast describing err, or
// success when err is nil.
func (s *server) backHome(w http.ResponseWriter, r *http.Request, err error, success string) {
	t := cookie.Toast{Title: success, Type: cookie.ToastSuccess}
	if err != nil {
		if !userFacing(err) {
			s.fail(w, err)
			return
		}
		t = cookie.Toast{Title: err.Error(), Type: cookie.ToastError}
	}
	redirect, rerr := s.svc.Bridge.RedirectWithToast(s.svc.Config.Routes.Home, t)
	if rerr != nil {
		s.fail(w, rerr)
		return
	}
	middleware.WriteRedirect(w, r, redirect)
}

func userFacing(err error) bool {
	return errors.Is(err, kvauth.ErrCurrentSession) ||
		errors.Is(err, kvauth.ErrSessionNotFound) ||
		errors.Is(err, kvauth.ErrEmailMismatch)
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		s.svc.Logger.Warn("health check failed", zap.Error(err))
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, kvauth.ErrStoreUnavailable) {
		status = http.StatusServiceUnavailable
	}
	s.svc.Logger.Error("request failed", zap.Error(err))
	http.Error(w, http.StatusText(status), status)
}

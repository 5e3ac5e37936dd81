package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/kvauth"
	"github.com/MrEthical07/kvauth/authn"
	"go.uber.org/zap"
)

type currentContextKey struct{}

// CurrentFromContext returns the user resolved by RequireAuthenticated.
func CurrentFromContext(ctx context.Context) (*kvauth.Current, bool) {
	cur, ok := ctx.Value(currentContextKey{}).(*kvauth.Current)
	return cur, ok && cur != nil
}

// WithCurrent returns a copy of ctx carrying cur.
func WithCurrent(ctx context.Context, cur *kvauth.Current) context.Context {
	return context.WithValue(ctx, currentContextKey{}, cur)
}

// RequireAuthenticated lets signed-in requests through with the current
// user in the context and redirects everyone else to the login page.
func RequireAuthenticated(svc *kvauth.Services) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if svc == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			cur, redirect, err := svc.Bridge.RequireAuthenticated(r.Context(), r)
			if err != nil {
				storeError(w, svc.Logger, err)
				return
			}
			if redirect != nil {
				WriteRedirect(w, r, redirect)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCurrent(r.Context(), cur)))
		})
	}
}

// RequireAnonymous lets requests without a session through.
func RequireAnonymous(svc *kvauth.Services) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			redirect, err := svc.Bridge.RequireAnonymous(r.Context(), r)
			if err != nil {
				storeError(w, svc.Logger, err)
				return
			}
			if redirect != nil {
				WriteRedirect(w, r, redirect)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteRedirect sends redirect as a 303 with its cookies attached.
func WriteRedirect(w http.ResponseWriter, r *http.Request, redirect *authn.Redirect) {
	for _, c := range redirect.Cookies {
		w.Header().Add("Set-Cookie", c)
	}
	http.Redirect(w, r, redirect.Location, http.StatusSeeOther)
}

func storeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, kvauth.ErrStoreUnavailable) {
		status = http.StatusServiceUnavailable
	}
	logger.Error("session lookup failed", zap.Error(err))
	http.Error(w, http.StatusText(status), status)
}

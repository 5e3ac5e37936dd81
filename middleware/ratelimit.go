package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/kvauth"
	"github.com/MrEthical07/kvauth/internal/ratelimit"
)

// RateLimit spends one request of the client's budget per call and answers
// 429 with Retry-After once it is exhausted.
func RateLimit(svc *kvauth.Services) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := svc.CheckRateLimit(r.Context(), r)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}
			var limited *ratelimit.LimitedError
			if errors.As(err, &limited) {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter(limited)))
			}
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		})
	}
}

func retryAfter(e *ratelimit.LimitedError) int {
	secs := int(math.Ceil(e.Wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

package kvauth

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/kvauth/session"
)

const (
	unknownValue = "Unknown"
	localhostIP  = "127.0.0.1"
)

// RequestMeta is the device information recorded with a new session.
type RequestMeta struct {
	UserAgent string
	IPAddress string
	Country   string
}

// RequestMetaFrom reads the user agent, client IP and country from r,
// preferring the headers set by the edge proxy.
func RequestMetaFrom(r *http.Request) RequestMeta {
	meta := RequestMeta{
		UserAgent: r.Header.Get("User-Agent"),
		IPAddress: ClientIP(r),
		Country:   r.Header.Get("CF-IPCountry"),
	}
	if meta.UserAgent == "" {
		meta.UserAgent = unknownValue
	}
	if meta.Country == "" {
		meta.Country = unknownValue
	}
	return meta
}

// SessionParams returns the session.Params for userID signing in through r.
func (m RequestMeta) SessionParams(userID string) session.Params {
	return session.Params{
		UserID:    userID,
		UserAgent: m.UserAgent,
		IPAddress: m.IPAddress,
		Country:   m.Country,
	}
}

// ClientIP returns CF-Connecting-IP, then the first X-Forwarded-For hop,
// then the connection address, then 127.0.0.1.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return localhostIP
}

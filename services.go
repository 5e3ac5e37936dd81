package kvauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/kvauth/authn"
	"github.com/MrEthical07/kvauth/cookie"
	"github.com/MrEthical07/kvauth/internal/audit"
	"github.com/MrEthical07/kvauth/internal/ratelimit"
	"github.com/MrEthical07/kvauth/kv"
	"github.com/MrEthical07/kvauth/session"
	"github.com/MrEthical07/kvauth/verification"
	"go.uber.org/zap"
)

// Services is the dependency container built once at startup and passed to
// every handler. It holds no per-request state and is safe for concurrent
// use.
type Services struct {
	Config        Config
	Logger        *zap.Logger
	KV            kv.Store
	Codes         *verification.Store
	Sessions      *session.Store
	Cookies       *cookie.Storage
	Toasts        *cookie.Toasts
	Users         UserDirectory
	Authenticator *authn.Authenticator
	// Limiter is nil when rate limiting is disabled.
	Limiter *ratelimit.Limiter
	Bridge  *Bridge
	Metrics *Metrics

	audit *audit.Dispatcher
	now   func() time.Time
}

// OpenSession records a new session for userID with the device details of
// r and returns the principal to store in the cookie.
func (s *Services) OpenSession(ctx context.Context, userID string, r *http.Request) (authn.Principal, error) {
	meta := RequestMetaFrom(r)
	sid, err := s.Sessions.Create(ctx, meta.SessionParams(userID))
	if err != nil {
		return authn.Principal{}, err
	}
	s.Metrics.Inc(MetricSessionCreated)
	return authn.Principal{UserID: userID, SessionID: sid}, nil
}

// CheckRateLimit spends one request from the client's budget. It returns a
// *ratelimit.LimitedError (matching ErrRateLimited) once the budget is gone.
func (s *Services) CheckRateLimit(ctx context.Context, r *http.Request) error {
	if s.Limiter == nil {
		return nil
	}
	ip := ClientIP(r)
	err := s.Limiter.Allow(ctx, ip)
	if err != nil {
		s.Metrics.Inc(MetricRateLimitHit)
		s.emit(ctx, AuditEvent{EventType: AuditRateLimited, IP: ip, Error: err.Error()})
	}
	return err
}

// MetricsSnapshot returns the current counters. It satisfies the source
// interface of the metrics exporters.
func (s *Services) MetricsSnapshot() MetricsSnapshot {
	return s.Metrics.Snapshot()
}

// AuditDropped reports audit events lost to a full buffer.
func (s *Services) AuditDropped() uint64 {
	return s.audit.Dropped()
}

// Ping checks the key-value backend when it supports it.
func (s *Services) Ping(ctx context.Context) error {
	p, ok := s.KV.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

// Close flushes pending audit events.
func (s *Services) Close() {
	s.audit.Close()
}

func (s *Services) emit(ctx context.Context, ev AuditEvent) {
	if s.audit == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now().UTC()
	}
	s.audit.Emit(ctx, ev)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	var cd *verification.CooldownError
	if errors.As(err, &cd) {
		return "cooldown"
	}
	return err.Error()
}

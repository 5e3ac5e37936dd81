package kvauth

import (
	"context"
	"strings"

	"github.com/MrEthical07/kvauth/authn"
	"github.com/MrEthical07/kvauth/cookie"
	"github.com/MrEthical07/kvauth/session"
	"golang.org/x/sync/errgroup"
)

// SessionView is one row of the signed-in devices list.
type SessionView struct {
	session.Session
	Current bool
}

// ListSessions returns the user's live sessions, newest first, marking the
// one cur belongs to.
func (s *Services) ListSessions(ctx context.Context, cur *Current) ([]SessionView, error) {
	sessions, err := s.Sessions.ListByUser(ctx, cur.User.ID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionView{
			Session: sess,
			Current: sess.SessionID == cur.Session.SessionID,
		})
	}
	return out, nil
}

// SignOutSession revokes one of the user's other sessions.
func (s *Services) SignOutSession(ctx context.Context, cur *Current, sessionID string) error {
	if sessionID == cur.Session.SessionID {
		return ErrCurrentSession
	}
	existing, err := s.Sessions.Get(ctx, cur.User.ID, sessionID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrSessionNotFound
	}
	if err := s.Sessions.Delete(ctx, cur.User.ID, sessionID); err != nil {
		return err
	}
	s.Metrics.Inc(MetricSessionRevoked)
	s.emit(ctx, AuditEvent{
		EventType: AuditSessionRevoked,
		UserID:    cur.User.ID,
		SessionID: sessionID,
		Success:   true,
	})
	return nil
}

// SignOutOtherSessions revokes every session of the user except cur's.
func (s *Services) SignOutOtherSessions(ctx context.Context, cur *Current) error {
	if err := s.Sessions.DeleteOthersByUser(ctx, cur.User.ID, cur.Session.SessionID); err != nil {
		return err
	}
	s.emit(ctx, AuditEvent{
		EventType: AuditOthersRevoked,
		UserID:    cur.User.ID,
		SessionID: cur.Session.SessionID,
		Success:   true,
	})
	return nil
}

// DeleteAccount removes the user and all of their sessions once
// confirmEmail matches the account address. The returned redirect clears
// the cookie and flashes a confirmation.
func (s *Services) DeleteAccount(ctx context.Context, cur *Current, confirmEmail string) (*authn.Redirect, error) {
	if !strings.EqualFold(strings.TrimSpace(confirmEmail), cur.User.Email) {
		return nil, ErrEmailMismatch
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Sessions.DeleteAllByUser(gctx, cur.User.ID) })
	g.Go(func() error { return s.Users.DeleteUser(gctx, cur.User.ID) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.Metrics.Inc(MetricAccountDeleted)
	s.emit(ctx, AuditEvent{EventType: AuditAccountDeleted, UserID: cur.User.ID, Success: true})
	return s.Bridge.RedirectWithToast(s.Config.Routes.Login, cookie.Toast{
		Title: "Your account has been deleted",
		Type:  cookie.ToastSuccess,
	}, s.Cookies.Destroy())
}

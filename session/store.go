package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/kvauth/kv"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const keyPrefix = "session"

// DefaultMaxAge is used when NewStore receives a non-positive maxAge.
const DefaultMaxAge = 24 * time.Hour

// ErrUserIDRequired is returned by Create for an empty user id.
var ErrUserIDRequired = errors.New("session: user id required")

// Store manages session records. It is safe for concurrent use.
type Store struct {
	kv     kv.Store
	maxAge time.Duration
	now    func() time.Time
	newID  func() string
	fanout int
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides uuid.NewString.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithFanout bounds concurrent per-key requests in bulk operations.
// Zero or negative means unbounded.
func WithFanout(n int) Option {
	return func(s *Store) { s.fanout = n }
}

// NewStore returns a Store writing sessions that live for maxAge.
func NewStore(backend kv.Store, maxAge time.Duration, opts ...Option) *Store {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	s := &Store{
		kv:     backend,
		maxAge: maxAge,
		now:    time.Now,
		newID:  uuid.NewString,
		fanout: 16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxAge returns the configured session lifetime.
func (s *Store) MaxAge() time.Duration { return s.maxAge }

// Key returns the storage key for a session.
func Key(userID, sessionID string) string {
	return keyPrefix + ":" + userID + ":" + sessionID
}

func userPrefix(userID string) string {
	return keyPrefix + ":" + userID + ":"
}

// sessionIDFromKey returns the third colon-separated segment of key.
func sessionIDFromKey(key string) (string, bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 3 || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// Create writes a new session and returns its id. ExpiresAt is now plus
// MaxAge and the backend TTL equals MaxAge.
func (s *Store) Create(ctx context.Context, p Params) (string, error) {
	if p.UserID == "" {
		return "", ErrUserIDRequired
	}
	now := s.now()
	sess := Session{
		UserID:    p.UserID,
		SessionID: s.newID(),
		UserAgent: p.UserAgent,
		IPAddress: p.IPAddress,
		Country:   p.Country,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(s.maxAge).UnixMilli(),
	}
	if err := kv.PutJSON(ctx, s.kv, Key(sess.UserID, sess.SessionID), sess, kv.CeilSeconds(s.maxAge)); err != nil {
		return "", err
	}
	return sess.SessionID, nil
}

// Get returns the session, or nil when it is absent or past ExpiresAt.
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*Session, error) {
	if userID == "" || sessionID == "" {
		return nil, nil
	}
	var sess Session
	found, err := kv.GetJSON(ctx, s.kv, Key(userID, sessionID), &sess)
	if err != nil || !found {
		return nil, err
	}
	if !sess.Valid(s.now()) {
		return nil, nil
	}
	return &sess, nil
}

// Update merges patch into an existing session and rewrites it with a TTL
// derived from ExpiresAt, at least one second. It reports false when the
// session does not exist.
func (s *Store) Update(ctx context.Context, userID, sessionID string, patch Patch) (bool, error) {
	key := Key(userID, sessionID)
	var sess Session
	found, err := kv.GetJSON(ctx, s.kv, key, &sess)
	if err != nil || !found {
		return false, err
	}

	patch.apply(&sess)
	ttl := kv.CeilSeconds(time.UnixMilli(sess.ExpiresAt).Sub(s.now()))
	if err := kv.PutJSON(ctx, s.kv, key, sess, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes one session.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	return s.kv.Delete(ctx, Key(userID, sessionID))
}

// ListByUser returns the user's live sessions, newest first. Records are
// fetched concurrently; keys that vanish between list and get are skipped.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	keys, err := s.kv.List(ctx, userPrefix(userID))
	if err != nil {
		return nil, err
	}

	found := make([]*Session, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	if s.fanout > 0 {
		g.SetLimit(s.fanout)
	}
	for i, key := range keys {
		g.Go(func() error {
			var sess Session
			ok, err := kv.GetJSON(gctx, s.kv, key, &sess)
			if err != nil {
				return fmt.Errorf("session: load %s: %w", key, err)
			}
			if ok {
				found[i] = &sess
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]Session, 0, len(found))
	for _, sess := range found {
		if sess != nil && sess.Valid(now) {
			out = append(out, *sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

// DeleteAllByUser removes every session of the user. Deletions run
// concurrently and are not rolled back on partial failure; the first
// error is returned after all deletions have been attempted.
func (s *Store) DeleteAllByUser(ctx context.Context, userID string) error {
	return s.deleteMatching(ctx, userID, func(string) bool { return true })
}

// DeleteOthersByUser removes every session of the user except keep.
func (s *Store) DeleteOthersByUser(ctx context.Context, userID, keep string) error {
	return s.deleteMatching(ctx, userID, func(key string) bool {
		id, ok := sessionIDFromKey(key)
		return ok && id != keep
	})
}

func (s *Store) deleteMatching(ctx context.Context, userID string, match func(key string) bool) error {
	keys, err := s.kv.List(ctx, userPrefix(userID))
	if err != nil {
		return err
	}

	// No shared context: one failed delete must not cancel the others.
	var g errgroup.Group
	if s.fanout > 0 {
		g.SetLimit(s.fanout)
	}
	for _, key := range keys {
		if !match(key) {
			continue
		}
		g.Go(func() error {
			return s.kv.Delete(ctx, key)
		})
	}
	return g.Wait()
}

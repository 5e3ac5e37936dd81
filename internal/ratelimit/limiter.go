package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrEthical07/kvauth/kv"
	"go.uber.org/zap"
)

const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 10

	keyPrefix = "rate_limit:"
)

// ErrRateLimited is matched by LimitedError.
var ErrRateLimited = errors.New("rate limited")

// LimitedError reports a denied request and when the window reopens.
type LimitedError struct {
	Reset time.Time
	Wait  time.Duration
}

func (e *LimitedError) Error() string {
	return "Too many requests. Please try again in " + FormatWait(e.Wait)
}

func (e *LimitedError) Is(target error) bool { return target == ErrRateLimited }

// Config tunes a Limiter. Zero values fall back to the defaults.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

// Info is the state after one Check.
type Info struct {
	Limited   bool
	Remaining int
	Reset     time.Time
}

type window struct {
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// Limiter is a fixed-budget window counter over a kv.Store.
type Limiter struct {
	store  kv.Store
	window time.Duration
	max    int
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes a Limiter.
type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Limiter.
func New(store kv.Store, cfg Config, opts ...Option) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	l := &Limiter{
		store:  store,
		window: cfg.Window,
		max:    cfg.MaxRequests,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func key(identifier string) string { return keyPrefix + identifier }

// Check consumes one request from identifier's budget.
func (l *Limiter) Check(ctx context.Context, identifier string) Info {
	now := l.now()
	fresh := Info{Remaining: l.max - 1, Reset: now.Add(l.window)}

	var w window
	found, err := kv.GetJSON(ctx, l.store, key(identifier), &w)
	if err != nil {
		return l.failOpen(now, err)
	}
	if !found || now.UnixMilli() >= w.Reset {
		if err := l.put(ctx, identifier, fresh); err != nil {
			return l.failOpen(now, err)
		}
		return fresh
	}

	if w.Remaining <= 0 {
		return Info{Limited: true, Remaining: 0, Reset: time.UnixMilli(w.Reset)}
	}
	next := Info{Remaining: w.Remaining - 1, Reset: now.Add(l.window)}
	if err := l.put(ctx, identifier, next); err != nil {
		return l.failOpen(now, err)
	}
	return next
}

// Allow wraps Check and returns a *LimitedError when the budget is spent.
func (l *Limiter) Allow(ctx context.Context, identifier string) error {
	info := l.Check(ctx, identifier)
	if !info.Limited {
		return nil
	}
	return &LimitedError{Reset: info.Reset, Wait: info.Reset.Sub(l.now())}
}

// Reset clears the counter for identifier.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if err := l.store.Delete(ctx, key(identifier)); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}

func (l *Limiter) put(ctx context.Context, identifier string, info Info) error {
	return kv.PutJSON(ctx, l.store, key(identifier), window{
		Remaining: info.Remaining,
		Reset:     info.Reset.UnixMilli(),
	}, l.window)
}

func (l *Limiter) failOpen(now time.Time, err error) Info {
	l.logger.Error("rate limit check failed",
		zap.String("event", "rate_limit_error"),
		zap.Error(err),
	)
	return Info{Remaining: l.max, Reset: now.Add(l.window)}
}

// FormatWait renders d the way users read it: "45 seconds", "3 minutes",
// "2 hours 5 minutes".
func FormatWait(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 60 {
		return fmt.Sprintf("%d seconds", seconds)
	}
	minutes := int(math.Ceil(float64(seconds) / 60))
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	out := fmt.Sprintf("%d hours", minutes/60)
	if rem := minutes % 60; rem > 0 {
		out += fmt.Sprintf(" %d minutes", rem)
	}
	return out
}

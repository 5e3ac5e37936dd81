package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/kvauth/kv"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// Type is the channel a code is delivered over.
type Type string

const (
	TypeEmail Type = "email"
	TypePhone Type = "phone"
)

// SecretConfig holds everything needed to re-derive a code.
type SecretConfig struct {
	Secret    string `json:"secret"`
	Algorithm string `json:"algorithm"`
	Digits    int    `json:"digits"`
	Period    int    `json:"period"`
	CharSet   string `json:"charSet"`
}

// Record is the persisted verification state. Timestamps are unix millis.
type Record struct {
	Type           Type         `json:"type"`
	Identifier     string       `json:"identifier"`
	Config         SecretConfig `json:"verificationConfig"`
	VerifyAttempts int          `json:"verifyAttempts"`
	LastActivityAt int64        `json:"lastActivityAt,omitempty"`
	CreatedAt      int64        `json:"createdAt"`
}

// Key returns the storage key for a (type, identifier) pair.
func Key(t Type, identifier string) string {
	return "verification:" + identifier + ":" + string(t)
}

// Store issues and checks codes. It holds no per-request state and is
// safe for concurrent use.
type Store struct {
	kv     kv.Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	rand   io.Reader
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for fail-open diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRand overrides the secret entropy source.
func WithRand(r io.Reader) Option {
	return func(s *Store) {
		if r != nil {
			s.rand = r
		}
	}
}

// New validates cfg and returns a Store over backend.
func New(backend kv.Store, cfg Config, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("verification: nil kv store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		kv:     backend,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the active configuration.
func (s *Store) Config() Config { return s.cfg }

// Generate creates a fresh secret for the pair and returns the current
// code. A previous record is overwritten, which resets its attempts.
//
// If the previous record saw activity less than SendCooldown ago Generate
// returns *CooldownError. A backend failure while reading the previous
// record is logged and treated as "no cooldown".
func (s *Store) Generate(ctx context.Context, t Type, identifier string) (string, error) {
	if identifier == "" {
		return "", ErrIdentifierRequired
	}
	key := Key(t, identifier)
	now := s.now()

	var prev Record
	found, err := kv.GetJSON(ctx, s.kv, key, &prev)
	switch {
	case err != nil:
		s.logger.Warn("verification cooldown check failed, continuing",
			zap.String("event", "verification_cooldown_check_failed"),
			zap.String("type", string(t)),
			zap.Error(err),
		)
	case found && prev.LastActivityAt > 0:
		elapsed := now.Sub(time.UnixMilli(prev.LastActivityAt))
		if remaining := s.cfg.SendCooldown - elapsed; remaining > 0 {
			return "", &CooldownError{Remaining: remaining}
		}
	}

	otpKey, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Issuer,
		AccountName: string(t),
		Period:      uint(s.cfg.Period / time.Second),
		SecretSize:  s.cfg.SecretSize,
		Digits:      otp.Digits(s.cfg.Digits),
		Algorithm:   s.cfg.Algorithm,
		Rand:        s.rand,
	})
	if err != nil {
		return "", fmt.Errorf("verification: generate secret: %w", err)
	}
	secret, err := decodeSecret(otpKey.Secret())
	if err != nil {
		return "", fmt.Errorf("verification: decode secret: %w", err)
	}

	sc := SecretConfig{
		Secret:    otpKey.Secret(),
		Algorithm: s.cfg.Algorithm.String(),
		Digits:    s.cfg.Digits,
		Period:    int(s.cfg.Period / time.Second),
		CharSet:   s.cfg.CharSet,
	}
	rec := Record{
		Type:           t,
		Identifier:     identifier,
		Config:         sc,
		VerifyAttempts: 0,
		LastActivityAt: now.UnixMilli(),
		CreatedAt:      now.UnixMilli(),
	}
	if err := kv.PutJSON(ctx, s.kv, key, rec, s.cfg.Period); err != nil {
		return "", err
	}

	code := charsetCode(secret, counterAt(now, s.cfg.Period), sc.Digits, s.cfg.Algorithm, sc.CharSet)
	return code, nil
}

// Verify checks code for the pair. Every call that reaches the code check
// consumes one attempt; the record is rewritten with its remaining TTL.
// A correct code deletes the record.
//
// ErrExpired is returned when the record is absent or already used up.
func (s *Store) Verify(ctx context.Context, t Type, identifier, code string) (bool, error) {
	key := Key(t, identifier)

	var rec Record
	found, err := kv.GetJSON(ctx, s.kv, key, &rec)
	if err != nil {
		return false, err
	}
	if !found || rec.VerifyAttempts >= s.cfg.MaxAttempts {
		return false, ErrExpired
	}

	now := s.now()
	ok := false
	if secret, err := decodeSecret(rec.Config.Secret); err == nil {
		ok = matchWithin(secret, s.normalize(code, rec.Config.CharSet), now, rec.Config, s.cfg.Skew)
	}

	rec.VerifyAttempts++
	rec.LastActivityAt = now.UnixMilli()
	if err := kv.PutJSON(ctx, s.kv, key, rec, s.remainingTTL(rec, now)); err != nil {
		return false, err
	}

	if !ok {
		return false, nil
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether a record is live for the pair.
func (s *Store) Exists(ctx context.Context, t Type, identifier string) (bool, error) {
	_, err := s.kv.Get(ctx, Key(t, identifier))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the record for the pair, or nil when absent.
func (s *Store) Get(ctx context.Context, t Type, identifier string) (*Record, error) {
	var rec Record
	found, err := kv.GetJSON(ctx, s.kv, Key(t, identifier), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record for the pair. Missing records are ignored.
func (s *Store) Delete(ctx context.Context, t Type, identifier string) error {
	return s.kv.Delete(ctx, Key(t, identifier))
}

func (s *Store) remainingTTL(rec Record, now time.Time) time.Duration {
	if rec.CreatedAt == 0 {
		return s.cfg.Period
	}
	expires := time.UnixMilli(rec.CreatedAt).Add(time.Duration(rec.Config.Period) * time.Second)
	return kv.CeilSeconds(expires.Sub(now))
}

func (s *Store) normalize(code, charset string) string {
	code = strings.TrimSpace(code)
	if strings.ToUpper(charset) == charset {
		code = strings.ToUpper(code)
	}
	return code
}

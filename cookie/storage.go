package cookie

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize      = 32
	minSecretLen = 16
	hkdfSalt     = "kvauth/cookie/v1"
)

var (
	// ErrNoSecrets is returned when no usable secret is configured.
	ErrNoSecrets = errors.New("cookie: at least one secret of 16+ bytes required")
	// ErrNoName is returned for an empty cookie name.
	ErrNoName = errors.New("cookie: name required")
)

// Options configures a Storage.
type Options struct {
	Name    string
	Secrets []string
	// MaxAge bounds both the browser cookie and the signed payload.
	// Zero produces a browser-session cookie without an exp claim.
	MaxAge   time.Duration
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	Issuer   string
}

type payload struct {
	Data map[string]json.RawMessage `json:"d,omitempty"`
	jwt.RegisteredClaims
}

// Storage reads and writes one named cookie. It is immutable after
// construction and safe for concurrent use.
type Storage struct {
	opts   Options
	keys   []jwt.VerificationKey
	sign   []byte
	now    func() time.Time
	parser *jwt.Parser
}

// StorageOption customizes a Storage.
type StorageOption func(*Storage)

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) StorageOption {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStorage derives the signing keys and validates opts.
func NewStorage(opts Options, extra ...StorageOption) (*Storage, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return nil, ErrNoName
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	if opts.MaxAge < 0 {
		return nil, fmt.Errorf("cookie: negative max age for %s", opts.Name)
	}

	s := &Storage{opts: opts, now: time.Now}
	for _, secret := range opts.Secrets {
		if len(secret) < minSecretLen {
			continue
		}
		key, err := deriveKey(secret, opts.Name)
		if err != nil {
			return nil, err
		}
		if s.sign == nil {
			s.sign = key
		}
		s.keys = append(s.keys, key)
	}
	if s.sign == nil {
		return nil, ErrNoSecrets
	}
	for _, opt := range extra {
		opt(s)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	s.parser = jwt.NewParser(parserOpts...)
	return s, nil
}

func deriveKey(secret, name string) ([]byte, error) {
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte(name))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("cookie: derive key: %w", err)
	}
	return key, nil
}

// Name returns the cookie name.
func (s *Storage) Name() string { return s.opts.Name }

// GetSession decodes the session from a raw Cookie header. Missing,
// forged or expired cookies yield an empty session.
func (s *Storage) GetSession(cookieHeader string) *Session {
	if cookieHeader == "" {
		return newSession()
	}
	r := &http.Request{Header: http.Header{"Cookie": []string{cookieHeader}}}
	return s.FromRequest(r)
}

// FromRequest decodes the session carried by r.
func (s *Storage) FromRequest(r *http.Request) *Session {
	c, err := r.Cookie(s.opts.Name)
	if err != nil || c.Value == "" {
		return newSession()
	}
	data, ok := s.decode(c.Value)
	if !ok {
		return newSession()
	}
	return &Session{data: data}
}

func (s *Storage) decode(raw string) (map[string]json.RawMessage, bool) {
	var p payload
	_, err := s.parser.ParseWithClaims(raw, &p, func(*jwt.Token) (any, error) {
		return jwt.VerificationKeySet{Keys: s.keys}, nil
	})
	if err != nil {
		return nil, false
	}
	if p.Data == nil {
		p.Data = map[string]json.RawMessage{}
	}
	return p.Data, true
}

// Commit signs sess and returns the Set-Cookie header value.
func (s *Storage) Commit(sess *Session) (string, error) {
	if sess == nil {
		sess = newSession()
	}
	now := s.now()
	p := payload{
		Data: sess.data,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   s.opts.Issuer,
		},
	}
	if s.opts.MaxAge > 0 {
		p.ExpiresAt = jwt.NewNumericDate(now.Add(s.opts.MaxAge))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, p).SignedString(s.sign)
	if err != nil {
		return "", fmt.Errorf("cookie: sign %s: %w", s.opts.Name, err)
	}

	c := s.base(signed)
	if s.opts.MaxAge > 0 {
		c.MaxAge = int(s.opts.MaxAge / time.Second)
		c.Expires = now.Add(s.opts.MaxAge).UTC()
	}
	return c.String(), nil
}

// Destroy returns a Set-Cookie header value that clears the cookie.
func (s *Storage) Destroy() string {
	c := s.base("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	return c.String()
}

func (s *Storage) base(value string) *http.Cookie {
	return &http.Cookie{
		Name:     s.opts.Name,
		Value:    value,
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		Secure:   s.opts.Secure,
		HttpOnly: true,
		SameSite: s.opts.SameSite,
	}
}

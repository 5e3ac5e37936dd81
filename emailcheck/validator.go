// Package emailcheck decides whether an address can receive a login code.
// The format check always runs; the MX lookup only runs when DNS checks
// are enabled, which production deployments do.
package emailcheck

import (
	"context"
	"net"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/idna"
)

// emailFormat runs on the ASCII form of the address, so internationalized
// domains arrive here as punycode labels.
var emailFormat = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.(?:[a-zA-Z]{2,}|xn--[a-zA-Z0-9-]+)$`)

// MXResolver is satisfied by *net.Resolver.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Validator checks address format and, optionally, that the domain accepts
// mail.
type Validator struct {
	checkMX  bool
	resolver MXResolver
	logger   *zap.Logger
}

type Option func(*Validator)

// WithMXCheck enables the DNS lookup.
func WithMXCheck(enabled bool) Option {
	return func(v *Validator) { v.checkMX = enabled }
}

func WithResolver(r MXResolver) Option {
	return func(v *Validator) {
		if r != nil {
			v.resolver = r
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{resolver: net.DefaultResolver, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidFormat reports whether email looks like a deliverable address.
// Unicode domains are accepted.
func ValidFormat(email string) bool {
	_, ok := asciiAddress(email)
	return ok
}

// asciiAddress converts the domain of email to its IDNA ASCII form and
// checks the result against emailFormat. It returns the ASCII domain.
func asciiAddress(email string) (string, bool) {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", false
	}
	domain, err := idna.Lookup.ToASCII(email[at+1:])
	if err != nil {
		return "", false
	}
	if !emailFormat.MatchString(email[:at+1] + domain) {
		return "", false
	}
	return domain, true
}

// Validate reports whether email passes every enabled check. A failed DNS
// lookup rejects the address and is logged.
func (v *Validator) Validate(ctx context.Context, email string) bool {
	domain, ok := asciiAddress(email)
	if !ok {
		return false
	}
	if !v.checkMX {
		return true
	}

	records, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		v.logger.Error("mx record check failed",
			zap.String("event", "mx_record_check_failed"),
			zap.String("domain", domain),
			zap.Error(err),
		)
		return false
	}
	return len(records) > 0
}

package authn

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Strategy authenticates a request one way (one-time code, OAuth, ...).
// Implementations must be safe for concurrent use.
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, r *http.Request) Outcome
}

// Authenticator maps strategy names to strategies.
type Authenticator struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	tracer     trace.Tracer
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithTracerProvider overrides the global otel tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Authenticator) {
		if tp != nil {
			a.tracer = tp.Tracer("github.com/MrEthical07/kvauth/authn")
		}
	}
}

// NewAuthenticator returns an empty Authenticator.
func NewAuthenticator(opts ...Option) *Authenticator {
	a := &Authenticator{
		strategies: make(map[string]Strategy),
		tracer:     otel.Tracer("github.com/MrEthical07/kvauth/authn"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Use registers s under s.Name(), replacing any strategy of that name.
func (a *Authenticator) Use(s Strategy) error {
	if s == nil {
		return ErrNilStrategy
	}
	a.mu.Lock()
	a.strategies[s.Name()] = s
	a.mu.Unlock()
	return nil
}

// Strategy returns the strategy registered under name.
func (a *Authenticator) Strategy(name string) (Strategy, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.strategies[name]
	return s, ok
}

// Names lists registered strategy names in sorted order.
func (a *Authenticator) Names() []string {
	a.mu.RLock()
	names := make([]string, 0, len(a.strategies))
	for n := range a.strategies {
		names = append(names, n)
	}
	a.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Authenticate runs the named strategy and returns its outcome untouched.
func (a *Authenticator) Authenticate(ctx context.Context, name string, r *http.Request) Outcome {
	s, ok := a.Strategy(name)
	if !ok {
		return Failure(fmt.Errorf("%w: %q", ErrUnknownStrategy, name))
	}

	ctx, span := a.tracer.Start(ctx, "authn.Authenticate",
		trace.WithAttributes(attribute.String("authn.strategy", name)))
	defer span.End()

	out := s.Authenticate(ctx, r)
	if out.Kind() == KindFailure && out.Err == nil {
		out = Failure(nil)
	}
	span.SetAttributes(attribute.String("authn.outcome", out.Kind().String()))
	if out.Kind() == KindFailure {
		span.SetStatus(codes.Error, out.Err.Error())
	}
	return out
}

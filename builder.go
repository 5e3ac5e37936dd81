package kvauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/kvauth/authn"
	"github.com/MrEthical07/kvauth/cookie"
	"github.com/MrEthical07/kvauth/emailcheck"
	"github.com/MrEthical07/kvauth/internal/audit"
	"github.com/MrEthical07/kvauth/internal/ratelimit"
	"github.com/MrEthical07/kvauth/kv"
	"github.com/MrEthical07/kvauth/mailer"
	"github.com/MrEthical07/kvauth/session"
	"github.com/MrEthical07/kvauth/strategy/oauth"
	"github.com/MrEthical07/kvauth/strategy/totp"
	"github.com/MrEthical07/kvauth/verification"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Builder assembles Services. Configure it during initialization and call
// Build once.
type Builder struct {
	config    Config
	store     kv.Store
	users     UserDirectory
	sender    mailer.Sender
	validate  totp.ValidateFunc
	logger    *zap.Logger
	auditSink AuditSink
	tracer    trace.TracerProvider
	providers []oauth.Provider
	client    *http.Client
	extra     []authn.Strategy
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis backs every store with client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.store = kv.NewRedis(client)
	return b
}

// WithStore sets the key-value backend directly.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithUserDirectory(dir UserDirectory) *Builder {
	b.users = dir
	return b
}

// WithSender overrides the mail transport chosen from Config.Mail.
func (b *Builder) WithSender(s mailer.Sender) *Builder {
	b.sender = s
	return b
}

// WithEmailValidator overrides the address check applied before a code is
// sent.
func (b *Builder) WithEmailValidator(fn func(ctx context.Context, email string) bool) *Builder {
	b.validate = fn
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink enables audit delivery to sink. Config.Audit still decides
// buffering; a sink without Audit.Enabled is ignored.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

// WithOAuthProvider registers an extra provider strategy, or replaces the
// one configured from Config.OAuth with the same name.
func (b *Builder) WithOAuthProvider(p oauth.Provider) *Builder {
	b.providers = append(b.providers, p)
	return b
}

// WithHTTPClient sets the client used for provider calls.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.client = c
	return b
}

// WithStrategy registers an additional strategy with the authenticator.
func (b *Builder) WithStrategy(s authn.Strategy) *Builder {
	b.extra = append(b.extra, s)
	return b
}

func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Services, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("key-value store required")
	}
	if b.users == nil {
		return nil, ErrNoUserDirectory
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	vcfg, err := cfg.VerificationStoreConfig()
	if err != nil {
		return nil, err
	}
	codes, err := verification.New(b.store, vcfg,
		verification.WithLogger(logger),
		verification.WithClock(now),
	)
	if err != nil {
		return nil, err
	}

	secrets := cfg.CookieSecrets()
	cookies, err := cookie.NewStorage(cookie.Options{
		Name:     cfg.Session.CookieName,
		Secrets:  secrets,
		MaxAge:   cfg.Session.TTL,
		Domain:   cfg.Session.Domain,
		Secure:   cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
		Issuer:   cfg.SiteName,
	}, cookie.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("session cookie: %w", err)
	}
	toastStorage, err := cookie.NewStorage(cookie.Options{
		Name:     cookie.ToastCookieName,
		Secrets:  secrets,
		Domain:   cfg.Session.Domain,
		Secure:   cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
		Issuer:   cfg.SiteName,
	}, cookie.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("toast cookie: %w", err)
	}

	s := &Services{
		Config:   cfg,
		Logger:   logger,
		KV:       b.store,
		Codes:    codes,
		Sessions: session.NewStore(b.store, cfg.Session.TTL, session.WithClock(now), session.WithFanout(cfg.Session.Fanout)),
		Cookies:  cookies,
		Toasts:   cookie.NewToasts(toastStorage),
		Users:    b.users,
		Metrics:  NewMetrics(cfg.Metrics),
		now:      now,
	}
	if cfg.RateLimit.Enabled {
		s.Limiter = ratelimit.New(b.store, ratelimit.Config{
			Window:      cfg.RateLimit.Window,
			MaxRequests: cfg.RateLimit.MaxRequests,
		}, ratelimit.WithClock(now), ratelimit.WithLogger(logger))
	}
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(logger)
	}
	s.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	var authOpts []authn.Option
	if b.tracer != nil {
		authOpts = append(authOpts, authn.WithTracerProvider(b.tracer))
	}
	s.Authenticator = authn.NewAuthenticator(authOpts...)

	if err := b.registerTOTP(s); err != nil {
		s.Close()
		return nil, err
	}
	if err := b.registerOAuth(s); err != nil {
		s.Close()
		return nil, err
	}
	for _, st := range b.extra {
		if err := s.Authenticator.Use(st); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.Bridge = &Bridge{s: s}
	b.built = true
	return s, nil
}

func (b *Builder) registerTOTP(s *Services) error {
	cfg := s.Config
	sender := b.sender
	if sender == nil {
		if cfg.Mail.ResendAPIKey != "" {
			sender = mailer.NewResend(mailer.ResendConfig{
				APIKey: cfg.Mail.ResendAPIKey,
				From:   cfg.Mail.From,
			}, s.Logger)
		} else {
			sender = mailer.NewLogSender(s.Logger)
		}
	}
	codeMailer := &mailer.CodeMailer{
		Sender:   sender,
		Site:     cfg.SiteName,
		ValidFor: cfg.Verification.Period,
		LogCodes: !cfg.IsProduction(),
		Logger:   s.Logger,
		Now:      s.now,
	}

	validate := b.validate
	if validate == nil {
		validate = emailcheck.New(
			emailcheck.WithMXCheck(cfg.IsProduction()),
			emailcheck.WithLogger(s.Logger),
		).Validate
	}

	st, err := totp.New(totp.Options{
		Codes:   meteredCodes{store: s.Codes, svc: s},
		Cookies: s.Cookies,
		Send: func(ctx context.Context, d totp.Delivery) error {
			return codeMailer.SendCode(ctx, d.Email, d.Code)
		},
		ValidateEmail: validate,
		Toasts:        s.Toasts,
		VerifyPath:    cfg.Routes.Verify,
		Logger:        s.Logger,
	}, func(ctx context.Context, p totp.VerifyParams) (authn.Principal, error) {
		userID, err := ResolveUser(ctx, s.Users, Identity{Email: p.Email, Provider: totp.Name}, s.Logger)
		if err != nil {
			return authn.Principal{}, err
		}
		return s.OpenSession(ctx, userID, p.Request)
	})
	if err != nil {
		return err
	}
	return s.Authenticator.Use(st)
}

func (b *Builder) registerOAuth(s *Services) error {
	cfg := s.Config
	callback := func(name string) string {
		return strings.TrimRight(cfg.AppURL, "/") + "/auth/" + name + "/callback"
	}

	byName := map[string]oauth.Provider{}
	var order []string
	add := func(p oauth.Provider) {
		if _, ok := byName[p.Name]; !ok {
			order = append(order, p.Name)
		}
		byName[p.Name] = p
	}
	if cfg.OAuth.GoogleClientID != "" {
		add(oauth.Google(cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret, callback("google"), nil))
	}
	if cfg.OAuth.GitHubClientID != "" {
		add(oauth.GitHub(cfg.OAuth.GitHubClientID, cfg.OAuth.GitHubClientSecret, callback("github"), nil))
	}
	for _, p := range b.providers {
		add(p)
	}

	verify := func(ctx context.Context, p oauth.VerifyParams) (authn.Principal, error) {
		userID, err := ResolveUser(ctx, s.Users, Identity{
			Email:             p.Profile.Email,
			DisplayName:       p.Profile.DisplayName,
			AvatarURL:         p.Profile.AvatarURL,
			Provider:          p.Profile.Provider,
			ProviderAccountID: p.Profile.ID,
		}, s.Logger)
		if err != nil {
			return authn.Principal{}, err
		}
		return s.OpenSession(ctx, userID, p.Request)
	}

	for _, name := range order {
		st, err := oauth.New(oauth.Options{
			Provider:   byName[name],
			Cookies:    s.Cookies,
			HTTPClient: b.client,
			Logger:     s.Logger,
		}, verify)
		if err != nil {
			return err
		}
		if err := s.Authenticator.Use(st); err != nil {
			return err
		}
	}
	return nil
}

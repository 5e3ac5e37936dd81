package kvauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/kvauth/verification"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable read by LoadConfig.
const EnvPrefix = "KVAUTH_"

// devSecret signs cookies in development when no secret is configured.
const devSecret = "kvauth-development-secret-do-not-use"

// Config is the complete runtime configuration. Field tags document the
// environment variable (without EnvPrefix) and its default.
type Config struct {
	// Environment is "development" or "production".
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	SiteName    string `env:"SITE_NAME" envDefault:"kvauth"`
	// AppURL is the public origin used to build OAuth callback URLs.
	AppURL string `env:"APP_URL" envDefault:"http://localhost:8080"`

	Session      SessionConfig      `envPrefix:"SESSION_"`
	Verification VerificationConfig `envPrefix:"VERIFICATION_"`
	RateLimit    RateLimitConfig    `envPrefix:"RATE_LIMIT_"`
	Routes       RoutesConfig       `envPrefix:"ROUTE_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
	Mail         MailConfig         `envPrefix:"MAIL_"`
	OAuth        OAuthConfig        `envPrefix:"OAUTH_"`
	Metrics      MetricsConfig      `envPrefix:"METRICS_"`
	Audit        AuditConfig        `envPrefix:"AUDIT_"`
}

// SessionConfig controls the cookie and the server-side session records.
type SessionConfig struct {
	// Secrets sign the cookie. The first one signs, all of them verify.
	Secrets    []string      `env:"SECRET" envSeparator:","`
	CookieName string        `env:"COOKIE_NAME" envDefault:"__auth-session"`
	TTL        time.Duration `env:"TTL" envDefault:"360h"`
	Secure     bool          `env:"SECURE"`
	Domain     string        `env:"DOMAIN"`
	// Fanout bounds concurrent store calls in bulk session operations.
	Fanout int `env:"FANOUT" envDefault:"16"`
}

// VerificationConfig controls emailed one-time codes.
type VerificationConfig struct {
	Period       time.Duration `env:"PERIOD" envDefault:"10m"`
	SendCooldown time.Duration `env:"SEND_COOLDOWN" envDefault:"60s"`
	MaxAttempts  int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	Digits       int           `env:"DIGITS" envDefault:"6"`
	Algorithm    string        `env:"ALGORITHM" envDefault:"SHA256"`
	CharSet      string        `env:"CHARSET" envDefault:"ABCDEFGHJKLMNPQRSTUVWXYZ123456789"`
	Skew         int           `env:"SKEW" envDefault:"1"`
}

type RateLimitConfig struct {
	Enabled     bool          `env:"ENABLED" envDefault:"true"`
	Window      time.Duration `env:"WINDOW" envDefault:"60s"`
	MaxRequests int           `env:"MAX_REQUESTS" envDefault:"10"`
}

// RoutesConfig names the redirect targets used by the session bridge.
type RoutesConfig struct {
	Login  string `env:"LOGIN" envDefault:"/auth/login"`
	Verify string `env:"VERIFY" envDefault:"/auth/verify"`
	Home   string `env:"HOME" envDefault:"/home"`
	Root   string `env:"ROOT" envDefault:"/"`
}

// RedisConfig is read by cmd/ binaries. An empty Addr starts an in-process
// miniredis in development.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"`
}

type MailConfig struct {
	ResendAPIKey string `env:"RESEND_API_KEY"`
	From         string `env:"FROM" envDefault:"kvauth <no-reply@localhost>"`
}

type OAuthConfig struct {
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
}

type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED" envDefault:"true"`
	EnableLatencyHistograms bool `env:"LATENCY" envDefault:"true"`
}

type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE" envDefault:"1024"`
	DropIfFull bool `env:"DROP_IF_FULL" envDefault:"true"`
}

// DefaultConfig returns the same values LoadConfig produces from an empty
// environment.
func DefaultConfig() Config {
	cfg, err := parseConfig(map[string]string{})
	if err != nil {
		panic(fmt.Sprintf("kvauth: default config: %v", err))
	}
	return cfg
}

// LoadConfig reads KVAUTH_* variables from the process environment and
// validates the result.
func LoadConfig() (Config, error) {
	return loadValidated(nil)
}

// LoadConfigFrom reads configuration from an explicit variable map.
func LoadConfigFrom(vars map[string]string) (Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return loadValidated(vars)
}

func loadValidated(vars map[string]string) (Config, error) {
	cfg, err := parseConfig(vars)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseConfig(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Session.Secrets = trimCSV(cfg.Session.Secrets)
	return cfg, nil
}

// IsProduction reports whether Environment is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// CookieSecrets returns the configured secrets, falling back to a fixed
// development secret outside production.
func (c *Config) CookieSecrets() []string {
	if len(c.Session.Secrets) == 0 && !c.IsProduction() {
		return []string{devSecret}
	}
	return c.Session.Secrets
}

// VerificationStoreConfig converts the code settings for verification.New.
func (c *Config) VerificationStoreConfig() (verification.Config, error) {
	alg, err := verification.ParseAlgorithm(c.Verification.Algorithm)
	if err != nil {
		return verification.Config{}, err
	}
	vc := verification.DefaultConfig()
	vc.Period = c.Verification.Period
	vc.SendCooldown = c.Verification.SendCooldown
	vc.MaxAttempts = c.Verification.MaxAttempts
	vc.Digits = c.Verification.Digits
	vc.Algorithm = alg
	vc.CharSet = c.Verification.CharSet
	vc.Skew = c.Verification.Skew
	if c.SiteName != "" && !strings.Contains(c.SiteName, ":") {
		vc.Issuer = c.SiteName
	}
	return vc, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment) {
	case "development", "production", "test":
	default:
		return fmt.Errorf("Environment must be development, production or test, got %q", c.Environment)
	}
	if c.IsProduction() && len(c.Session.Secrets) == 0 {
		return errors.New("Session Secret is required in production")
	}
	for _, s := range c.Session.Secrets {
		if len(s) < 16 {
			return errors.New("Session Secret entries must be at least 16 bytes")
		}
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName must be set")
	}
	if c.Session.TTL < time.Second {
		return errors.New("Session TTL must be >= 1s")
	}
	if c.Session.Fanout <= 0 {
		return errors.New("Session Fanout must be > 0")
	}
	vc, err := c.VerificationStoreConfig()
	if err != nil {
		return err
	}
	if err := vc.Validate(); err != nil {
		return err
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
		if c.RateLimit.MaxRequests <= 0 {
			return errors.New("RateLimit MaxRequests must be > 0")
		}
	}
	for name, path := range map[string]string{
		"Login": c.Routes.Login, "Verify": c.Routes.Verify, "Home": c.Routes.Home, "Root": c.Routes.Root,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("Routes %s must be an absolute path", name)
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	return nil
}

func trimCSV(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

package kvauth

import "time"

// LintWarning is a configuration that validates but is risky.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult lists warnings in a stable order.
type LintResult []LintWarning

// Codes returns the warning codes.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are legal but unsafe, mostly in production.
func (c *Config) Lint() LintResult {
	var out LintResult
	add := func(code, msg string) {
		out = append(out, LintWarning{Code: code, Message: msg})
	}

	if len(c.Session.Secrets) == 0 {
		add("dev_secret", "session cookie is signed with the built-in development secret")
	}
	if c.IsProduction() && !c.Session.Secure {
		add("cookie_not_secure", "session cookie is sent over plain HTTP")
	}
	if !c.RateLimit.Enabled {
		add("rate_limit_disabled", "auth routes are not rate limited")
	}
	if c.Verification.MaxAttempts > 5 {
		add("many_code_attempts", "more than 5 attempts per code weakens short codes")
	}
	if c.Verification.Period > 30*time.Minute {
		add("long_code_period", "codes stay valid for more than 30 minutes")
	}
	if c.IsProduction() && c.Mail.ResendAPIKey == "" {
		add("no_mail_transport", "codes are only logged, never emailed")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "audit events are discarded")
	}
	return out
}

package mailer

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"
)

var loginCodeHTML = htmltemplate.Must(htmltemplate.New("login-code-html").Parse(`<!DOCTYPE html>
<html lang="en">
  <head><title>Your {{.Site}} login code</title></head>
  <body style="margin: 0; padding: 0;">
    <div style="margin: 0 auto; padding: 36px; max-width: 580px; border: 1px solid #e0e0e0; border-radius: 12px;">
      <p style="font-size: 14px;">Hi, there!</p>
      <h1 style="font-size: 20px; font-weight: 400; padding: 24px 0 0;">Your <strong>{{.Site}}</strong> login code</h1>
      <code style="padding: 6px; background-color: #f6f6f6; text-align: center; border-radius: 6px; margin: 24px auto; display: block; font-size: 24px; font-weight: 800; letter-spacing: 6px;">{{.Code}}</code>
      <p style="font-size: 14px;">
        This verification code was generated at {{.SentAt}}. For your security, it can only be used once and will expire in {{.Expiry}}.<br/><br/>
        <strong style="font-weight: 600;">To protect your account, do not share this code.</strong>
      </p>
      <p style="color: #888888; font-size: 12px;">
        <strong style="font-weight: 500;">Didn't request this?</strong><br/>
        If you didn't request this, you can safely ignore this email.
      </p>
    </div>
  </body>
</html>
`))

var loginCodeText = texttemplate.Must(texttemplate.New("login-code-text").Parse(`Hi, there!

Your {{.Site}} login code.

Verification code: {{.Code}}

This is a one-time code that expires in {{.Expiry}}. To protect your account, do not share this code.

Didn't request this? If you didn't request this, you can safely ignore this email.`))

type loginCodeData struct {
	Site   string
	Code   string
	Expiry string
	SentAt string
}

// LoginCode renders the login code email.
func LoginCode(site, to, code string, validFor time.Duration, sentAt time.Time) (Message, error) {
	data := loginCodeData{
		Site:   site,
		Code:   code,
		Expiry: FormatExpiry(validFor),
		SentAt: sentAt.UTC().Format(time.RFC1123),
	}
	var html, text bytes.Buffer
	if err := loginCodeHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render login code html: %w", err)
	}
	if err := loginCodeText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render login code text: %w", err)
	}
	return Message{
		To:      []string{to},
		Subject: fmt.Sprintf("Your %s login code is %s", site, code),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// FormatExpiry renders d as "10 minutes", "1 hour" or "45 seconds".
func FormatExpiry(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return plural(int64((d+time.Second-1)/time.Second), "second")
	}
}

// CodeMailer renders and sends login codes.
type CodeMailer struct {
	Sender   Sender
	Site     string
	ValidFor time.Duration
	// LogCodes also logs the code itself. Development only.
	LogCodes bool
	Logger   *zap.Logger
	Now      func() time.Time
}

// SendCode emails code to email.
func (m *CodeMailer) SendCode(ctx context.Context, email, code string) error {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	if m.LogCodes && m.Logger != nil {
		m.Logger.Info("totp code",
			zap.String("event", "totp_send"),
			zap.String("email", email),
			zap.String("code", code),
		)
	}
	msg, err := LoginCode(m.Site, email, code, m.ValidFor, now())
	if err != nil {
		return err
	}
	return m.Sender.Send(ctx, msg)
}

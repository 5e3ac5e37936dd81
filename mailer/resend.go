package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const DefaultResendEndpoint = "https://api.resend.com/emails"

// APIError is a structured error returned by the Resend API.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("resend: %s (%d): %s", e.Name, e.StatusCode, e.Message)
}

// ResendConfig configures Resend. From is the full sender, for example
// "Acme <no-reply@acme.test>".
type ResendConfig struct {
	APIKey     string
	From       string
	Endpoint   string
	HTTPClient *http.Client
}

// Resend sends mail through the Resend API.
type Resend struct {
	cfg    ResendConfig
	logger *zap.Logger
}

func NewResend(cfg ResendConfig, logger *zap.Logger) *Resend {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultResendEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resend{cfg: cfg, logger: logger}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// Send posts msg and returns the provider message id.
func (r *Resend) Send(ctx context.Context, msg Message) error {
	_, err := r.send(ctx, msg)
	return err
}

func (r *Resend) send(ctx context.Context, msg Message) (string, error) {
	if r.cfg.APIKey == "" {
		return "", ErrNoAPIKey
	}
	body, err := json.Marshal(resendRequest{
		From:    r.cfg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("resend: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("resend: request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		r.logger.Error("resend email failed", zap.String("event", "resend_email_error"), zap.Error(err))
		return "", fmt.Errorf("resend: %w", err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	decodeErr := json.NewDecoder(resp.Body).Decode(&raw)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && decodeErr == nil {
		var ok struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(raw, &ok) == nil && ok.ID != "" {
			return ok.ID, nil
		}
	}

	var apiErr APIError
	if decodeErr == nil && json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
		r.logger.Error("resend api error",
			zap.String("event", "resend_api_error"),
			zap.String("message", apiErr.Message),
		)
		return "", &apiErr
	}

	r.logger.Error("resend email failed",
		zap.String("event", "resend_email_error"),
		zap.Int("status", resp.StatusCode),
	)
	return "", fmt.Errorf("resend: unexpected error sending email (status %d)", resp.StatusCode)
}

// Package mailer delivers login codes.
//
// Resend posts to the Resend HTTP API. LogSender writes the message to the
// logger instead and is what development builds use.
package mailer

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrNoAPIKey is returned by Resend when no key is configured.
var ErrNoAPIKey = errors.New("resend API key is not initialized")

// Message is one outgoing email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email",
		zap.String("event", "email_send"),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

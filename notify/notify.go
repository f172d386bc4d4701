// Package notify abstracts out-of-band code delivery (email/SMS). The MFA
// core is fire-and-forget towards delivery except that failures must surface
// as a distinct error kind: a generated code stays valid for its window even
// when delivery fails, so a retry-send reuses it instead of minting a new one.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
)

var (
	// ErrDelivery indicates a transient send failure. The code that failed
	// to send remains valid for its window.
	ErrDelivery = errors.New("code delivery failed")
	// ErrNotConfigured indicates delivery credentials are missing entirely,
	// distinguishable from a transient failure.
	ErrNotConfigured = errors.New("code delivery not configured")
)

// Sender delivers a one-time code to a destination address.
type Sender interface {
	SendCode(ctx context.Context, destination, code string) error
}

// SMTPConfig holds the credentials for email delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers codes over SMTP.
type SMTPSender struct {
	cfg SMTPConfig
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender validates the configuration. Missing host or sender address
// is ErrNotConfigured.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) SendCode(ctx context.Context, destination, code string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Your verification code\r\n\r\n"+
		"Your verification code is %s. It expires shortly.\r\n",
		s.cfg.From, destination, code)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{destination}, []byte(msg)); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// LogSender is a development-only Sender that logs instead of delivering.
// The code itself is logged at debug level; do not use in production.
type LogSender struct {
	Logger *slog.Logger
}

var _ Sender = (*LogSender)(nil)

func (l *LogSender) SendCode(ctx context.Context, destination, code string) error {
	l.Logger.InfoContext(ctx, "code delivery (dev sender)", "destination", destination)
	l.Logger.DebugContext(ctx, "dev sender code", "code", code)
	return nil
}

package delivery

import (
	"context"
	"errors"
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// EmailConfig holds SMTP connection settings for [EmailSender].
//
// EmailConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// EmailSender delivers codes over SMTP.
type EmailSender struct {
	config EmailConfig
	dialer *gomail.Dialer
}

// NewEmailSender describes the newemailsender operation and its observable behavior.
//
// NewEmailSender may return an error when input validation, dependency calls, or security checks fail.
func NewEmailSender(cfg EmailConfig) (*EmailSender, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, errors.New("delivery: email host and port are required")
	}
	if cfg.From == "" {
		return nil, errors.New("delivery: email from address is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "Your verification code"
	}

	return &EmailSender{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

// Send describes the send operation and its observable behavior.
//
// Send may return an error when input validation, dependency calls, or security checks fail.
// Send does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *EmailSender) Send(ctx context.Context, target, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", target)
	m.SetHeader("Subject", s.config.Subject)
	m.SetBody("text/plain", fmt.Sprintf("Your verification code is %s. It expires in a few minutes; do not share it.", code))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("delivery: smtp send to %s failed: %w", target, err)
	}
	return nil
}

// Package service sends transactional account email over SMTP.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// Config holds SMTP settings plus the public base URL used in links.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// BaseURL is the frontend origin the reset and verify links point at.
	BaseURL string

	MaxRetries     int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
}

type EmailService struct {
	config *Config
}

func NewEmailService(cfg *Config) (*EmailService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("email config is required")
	}
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	return &EmailService{config: cfg}, nil
}

// SendPasswordReset emails a one-hour reset link.
func (s *EmailService) SendPasswordReset(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.config.BaseURL, token)
	body := fmt.Sprintf(
		"<p>We received a request to reset your password.</p>"+
			"<p><a href=\"%s\">Reset your password</a></p>"+
			"<p>The link expires in 1 hour. If you did not request this, ignore this email.</p>",
		link)
	return s.send(ctx, to, "Reset your password", body)
}

// SendEmailVerification emails the address confirmation link.
func (s *EmailService) SendEmailVerification(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.config.BaseURL, token)
	body := fmt.Sprintf(
		"<p>Welcome! Confirm your email address to finish setting up your account.</p>"+
			"<p><a href=\"%s\">Verify email</a></p>"+
			"<p>The link expires in 24 hours.</p>",
		link)
	return s.send(ctx, to, "Verify your email", body)
}

func (s *EmailService) send(ctx context.Context, to, subject, htmlBody string) error {
	client, err := s.createClient()
	if err != nil {
		return fmt.Errorf("create mail client: %w", err)
	}
	defer client.Close()

	msg, err := s.buildMessage(to, subject, htmlBody)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
		err := client.DialAndSendWithContext(sendCtx, msg)
		cancel()

		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < s.config.MaxRetries {
			time.Sleep(s.config.RetryInterval)
		}
	}

	return fmt.Errorf("failed to send email after %d attempts: %w", s.config.MaxRetries, lastErr)
}

func (s *EmailService) createClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTimeout(s.config.ConnectTimeout),
	}

	if s.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
		)
	} else {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthNoAuth))
	}

	return mail.NewClient(s.config.Host, opts...)
}

func (s *EmailService) buildMessage(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	msg.SetDate()
	msg.SetMessageID()

	return msg, nil
}

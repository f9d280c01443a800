package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	// From is the SMTP envelope sender (MAIL FROM). This should be a raw mailbox address.
	From string
	// FromName is an optional display name used only for the message header.
	FromName string
}

// Configured reports whether enough settings exist to attempt delivery.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.From) != ""
}

type Sender struct {
	config Config
	auth   smtp.Auth
	dialer net.Dialer
}

func NewSender(config Config) *Sender {
	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}
	if config.Port == "" {
		config.Port = "587"
	}

	return &Sender{
		config: config,
		auth:   auth,
		dialer: net.Dialer{Timeout: 10 * time.Second},
	}
}

// SendMail delivers a plain-text message. ctx bounds the dial and, through the
// connection deadline, the whole SMTP exchange.
func (s *Sender) SendMail(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(s.config.Host, s.config.Port)

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.config.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.auth != nil {
		if err := c.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(sanitizeHeader(to)); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(s.message(to, subject, body)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return c.Quit()
}

func (s *Sender) message(to, subject, body string) []byte {
	fromHeader := s.config.From
	if strings.TrimSpace(s.config.FromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	lines := []string{
		fmt.Sprintf("From: %s", sanitizeHeader(fromHeader)),
		fmt.Sprintf("To: %s", sanitizeHeader(to)),
		fmt.Sprintf("Subject: %s", sanitizeHeader(subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

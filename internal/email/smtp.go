package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig holds the settings for an SMTP relay such as Gmail.
type SMTPConfig struct {
	Host     string
	Port     int // default 587
	Username string
	Password string
	FromAddr string
	FromName string
	UseTLS   bool // implicit TLS (port 465); otherwise STARTTLS when offered
}

type smtpTransport struct {
	cfg     SMTPConfig
	timeout time.Duration
}

// NewSMTPSender returns a Sender that relays mail through an SMTP server.
func NewSMTPSender(cfg SMTPConfig) Sender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &mailer{t: &smtpTransport{cfg: cfg, timeout: 20 * time.Second}}
}

func (s *smtpTransport) ready() error {
	var missing []string
	if strings.TrimSpace(s.cfg.Host) == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if s.cfg.Username == "" || s.cfg.Password == "" {
		missing = append(missing, "SMTP_USER/SMTP_PASS")
	}
	if strings.TrimSpace(s.cfg.FromAddr) == "" {
		missing = append(missing, "EMAIL_FROM_ADDR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("email: smtp not configured: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (s *smtpTransport) deliver(ctx context.Context, to, subject, html string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") {
		return errors.New("email: invalid recipient")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := &net.Dialer{Deadline: deadline}
	var (
		conn net.Conn
		err  error
	)
	if s.cfg.UseTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("email: dial %s: %w", addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("email: smtp handshake: %w", err)
	}
	defer client.Close()

	if !s.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("email: starttls: %w", err)
			}
		}
	}
	if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
		return fmt.Errorf("email: smtp auth: %w", err)
	}
	if err := client.Mail(s.cfg.FromAddr); err != nil {
		return fmt.Errorf("email: mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("email: rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("email: data: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(s.cfg.FromAddr, s.cfg.FromName, to, subject, html))); err != nil {
		_ = w.Close()
		return fmt.Errorf("email: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: close body: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, fromName, to, subject, html string) string {
	fromHeader := from
	if strings.TrimSpace(fromName) != "" {
		fromHeader = fmt.Sprintf("%q <%s>", fromName, from)
	}

	headers := []string{
		"From: " + fromHeader,
		"To: " + to,
		"Subject: " + encodeHeader(subject),
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + html
}

// encodeHeader RFC 2047-encodes non-ASCII subjects (emoji included).
func encodeHeader(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.QEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

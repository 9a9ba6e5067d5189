// Package email defines the interface for transactional email delivery and
// provides Resend-backed and SMTP-backed implementations.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDisabled is returned by a Sender that has no credentials configured.
var ErrDisabled = errors.New("email: sender disabled")

// DigestEntry is one birthday line in a reminder digest.
type DigestEntry struct {
	Name      string
	DaysUntil int // 0 means the birthday is today
}

// DigestParams holds the data for the daily birthday digest.
type DigestParams struct {
	To       string // recipient email address
	UserName string // used in the salutation; may be empty
	Entries  []DigestEntry
}

// LoginCodeParams holds the data for the one-time passcode email.
type LoginCodeParams struct {
	To        string
	Code      string
	ValidMins int
}

// Sender is the interface the reminder worker and auth handlers use to send
// email. Tests inject a stub that records calls without hitting the network.
type Sender interface {
	// Ready returns nil when the sender has what it needs to deliver mail.
	// The reminder run checks it once before touching any user.
	Ready() error

	// SendBirthdayDigest sends one email listing every birthday due for a
	// user today.
	SendBirthdayDigest(ctx context.Context, p DigestParams) error

	// SendLoginCode sends a one-time passcode for signup or login.
	SendLoginCode(ctx context.Context, p LoginCodeParams) error
}

// transport delivers a rendered message. Resend and SMTP each provide one.
type transport interface {
	ready() error
	deliver(ctx context.Context, to, subject, html string) error
}

// mailer renders messages and hands them to a transport.
type mailer struct {
	t transport
}

func (m *mailer) Ready() error { return m.t.ready() }

func (m *mailer) SendBirthdayDigest(ctx context.Context, p DigestParams) error {
	if strings.TrimSpace(p.To) == "" {
		return errors.New("email: recipient is required")
	}
	if len(p.Entries) == 0 {
		return errors.New("email: digest has no entries")
	}
	html, err := renderDigest(p)
	if err != nil {
		return fmt.Errorf("email: render digest: %w", err)
	}
	return m.t.deliver(ctx, p.To, DigestSubject(p.Entries), html)
}

func (m *mailer) SendLoginCode(ctx context.Context, p LoginCodeParams) error {
	if strings.TrimSpace(p.To) == "" {
		return errors.New("email: recipient is required")
	}
	html, err := renderLoginCode(p)
	if err != nil {
		return fmt.Errorf("email: render login code: %w", err)
	}
	return m.t.deliver(ctx, p.To, "🔐 Your Bornify sign-in code", html)
}

// ─── DISABLED SENDER ──────────────────────────────────────────────────────────

type disabledSender struct {
	reason string
}

// NewDisabledSender returns a Sender that refuses every message. It is used
// when no provider credentials are configured so the server can still start.
func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return ErrDisabled
	}
	return fmt.Errorf("%w: %s", ErrDisabled, s.reason)
}

func (s *disabledSender) Ready() error { return s.err() }

func (s *disabledSender) SendBirthdayDigest(context.Context, DigestParams) error { return s.err() }

func (s *disabledSender) SendLoginCode(context.Context, LoginCodeParams) error { return s.err() }

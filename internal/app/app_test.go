package app_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nyashahama/bornify-backend/internal/app"
	"github.com/nyashahama/bornify-backend/internal/calendar"
	"github.com/nyashahama/bornify-backend/internal/config"
	"github.com/nyashahama/bornify-backend/internal/email"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewMailer(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.Config
		wantReady bool
	}{
		{
			name: "resend without key is disabled",
			cfg:  config.Config{EmailProvider: config.ProviderResend, EmailFromAddr: "r@bornify.app"},
		},
		{
			name:      "resend with key",
			cfg:       config.Config{EmailProvider: config.ProviderResend, ResendAPIKey: "re_123", EmailFromAddr: "r@bornify.app"},
			wantReady: true,
		},
		{
			name: "smtp without password is disabled",
			cfg:  config.Config{EmailProvider: config.ProviderSMTP, SMTPHost: "smtp.example.com", SMTPUser: "u"},
		},
		{
			name: "smtp fully configured",
			cfg: config.Config{
				EmailProvider: config.ProviderSMTP, SMTPHost: "smtp.example.com", SMTPPort: 587,
				SMTPUser: "u", SMTPPass: "p", EmailFromAddr: "r@bornify.app",
			},
			wantReady: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := app.NewMailer(&tc.cfg, discardLogger())
			err := m.Ready()
			if tc.wantReady {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, email.ErrDisabled)
		})
	}
}

func TestNewReminderRunner_UsesConfiguredLocation(t *testing.T) {
	loc, err := time.LoadLocation("Pacific/Auckland")
	if err != nil {
		t.Skip("tzdata not available")
	}
	cfg := &config.Config{WorkerCount: 2, SendRate: 1, UserTimeout: time.Second, Location: loc}
	// 2025-06-14 20:00 UTC is already the 15th in Auckland.
	clock := calendar.FixedClock(time.Date(2025, time.June, 14, 20, 0, 0, 0, time.UTC))

	r := app.NewReminderRunner(cfg, nil, email.NewDisabledSender("test"), clock, discardLogger())
	assert.Equal(t, "2025-06-15", r.Today().String())
}

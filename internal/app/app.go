// Package app holds the wiring shared by the server and the bornctl CLI:
// opening the database, picking the email provider and assembling the
// reminder runner from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/nyashahama/bornify-backend/internal/calendar"
	"github.com/nyashahama/bornify-backend/internal/config"
	"github.com/nyashahama/bornify-backend/internal/email"
	"github.com/nyashahama/bornify-backend/internal/store"
	"github.com/nyashahama/bornify-backend/internal/worker"
)

// OpenDB opens the connection pool and verifies it is reachable.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	// Tune the connection pool.
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(10)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// NewMailer returns the sender for EMAIL_PROVIDER. Missing credentials give
// a disabled sender rather than an error; the reminder run reports it.
func NewMailer(cfg *config.Config, logger *slog.Logger) email.Sender {
	if !cfg.EmailConfigured() {
		logger.Warn("email: provider not configured, sending disabled", "provider", cfg.EmailProvider)
		return email.NewDisabledSender(fmt.Sprintf("%s credentials are not set", cfg.EmailProvider))
	}

	switch cfg.EmailProvider {
	case config.ProviderSMTP:
		logger.Info("email: using SMTP", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			FromAddr: cfg.EmailFromAddr,
			FromName: cfg.EmailFromName,
			UseTLS:   cfg.SMTPUseTLS,
		})
	default:
		logger.Info("email: using Resend")
		return email.NewResendClient(cfg.ResendAPIKey, cfg.EmailFromAddr, cfg.EmailFromName)
	}
}

// NewReminderRunner assembles the per-user job and the batch runner. Runs are
// recorded in st.
func NewReminderRunner(cfg *config.Config, st *store.Store, mailer email.Sender, clock calendar.Clock, logger *slog.Logger) *worker.Runner {
	job := worker.NewJob(st, mailer, worker.NewSendLimiter(cfg.SendRate), logger)
	return worker.NewRunner(job, st, mailer, st, clock, worker.RunnerConfig{
		Workers:     cfg.WorkerCount,
		UserTimeout: cfg.UserTimeout,
		Location:    cfg.Location,
	}, logger)
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nyashahama/bornify-backend/internal/calendar"
	"github.com/nyashahama/bornify-backend/internal/email"
	"github.com/nyashahama/bornify-backend/internal/reminder"
	"github.com/nyashahama/bornify-backend/internal/store"
)

// BirthdayLister is the narrow read the job needs from the store.
type BirthdayLister interface {
	ListBirthdaysByUser(ctx context.Context, userID uuid.UUID) ([]store.Birthday, error)
}

// Failure stages recorded in the run summary.
const (
	StageFetch    = "fetch"
	StageValidate = "validate"
	StageSend     = "send"
)

// StageError tags a per-user failure with the step that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// rejectedError folds a user's corrupt records into one validate-stage error.
func rejectedError(rejected []reminder.Rejected) error {
	errs := make([]error, len(rejected))
	for i, r := range rejected {
		errs[i] = r.Err
	}
	return &StageError{Stage: StageValidate, Err: errors.Join(errs...)}
}

// JobResult is the outcome of one user's pass when no error occurred.
type JobResult struct {
	Sent     bool // a digest was delivered
	Entries  int  // birthdays in the digest
	Rejected []reminder.Rejected
}

// Job builds and sends the digest for a single user. The Runner calls Run
// once per user from its worker goroutines, so Job holds no per-run state.
type Job struct {
	birthdays BirthdayLister
	mailer    email.Sender
	limiter   *rate.Limiter // nil means unthrottled
	logger    *slog.Logger
}

// NewJob constructs a Job. limiter may be nil.
func NewJob(birthdays BirthdayLister, mailer email.Sender, limiter *rate.Limiter, logger *slog.Logger) *Job {
	return &Job{
		birthdays: birthdays,
		mailer:    mailer,
		limiter:   limiter,
		logger:    logger,
	}
}

// Run executes the pipeline for one user:
//
//  1. Load the user's tracked birthdays.
//  2. Build the digest for today. Corrupt records are returned in
//     JobResult.Rejected and do not block the valid ones.
//  3. If anything is due, wait for a send slot and send exactly one email.
//
// A returned error is always a *StageError and counts as this user's failure.
func (j *Job) Run(ctx context.Context, user store.User, today calendar.Date) (JobResult, error) {
	log := j.logger.With("user_id", user.ID)

	// ── 1. Load birthdays ─────────────────────────────────────────────────────
	rows, err := j.birthdays.ListBirthdaysByUser(ctx, user.ID)
	if err != nil {
		return JobResult{}, &StageError{Stage: StageFetch, Err: err}
	}
	if len(rows) == 0 {
		return JobResult{}, nil
	}

	// ── 2. Build the digest (store rows → reminder.Tracked keeps reminder/ dep-free)
	tracked := make([]reminder.Tracked, len(rows))
	for i, b := range rows {
		tracked[i] = reminder.Tracked{
			ID:        b.ID,
			Name:      b.Name,
			BirthDate: b.BirthDate,
			LeadDays:  b.NotifyBeforeDays,
		}
	}
	digest := reminder.BuildDigest(today, tracked)

	res := JobResult{Rejected: digest.Rejected}
	for _, r := range digest.Rejected {
		log.Warn("job: skipping invalid birthday record", "birthday_id", r.BirthdayID, "error", r.Err)
	}
	if digest.Empty() {
		return res, nil
	}

	// ── 3. Send one digest ────────────────────────────────────────────────────
	entries := make([]email.DigestEntry, len(digest.Entries))
	for i, e := range digest.Entries {
		entries[i] = email.DigestEntry{Name: e.Name, DaysUntil: e.LeadDays}
	}

	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return res, &StageError{Stage: StageSend, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}
	if err := j.mailer.SendBirthdayDigest(ctx, email.DigestParams{
		To:       user.Email,
		UserName: user.Name,
		Entries:  entries,
	}); err != nil {
		return res, &StageError{Stage: StageSend, Err: err}
	}

	res.Sent = true
	res.Entries = len(entries)
	log.Debug("job: digest sent", "entries", len(entries))
	return res, nil
}

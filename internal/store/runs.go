package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/nyashahama/bornify-backend/internal/calendar"
)

// RunFailure is one per-user failure stored in reminder_runs.failures.
type RunFailure struct {
	UserID uuid.UUID `json:"user_id"`
	Stage  string    `json:"stage"`
	Error  string    `json:"error"`
}

// InsertRunParams mirrors the run summary columns.
type InsertRunParams struct {
	RunDate        calendar.Date
	StartedAt      time.Time
	Duration       time.Duration
	Success        bool
	UsersChecked   int
	Sent           int
	Failed         int
	SkippedRecords int
	ErrorMessage   string
	Failures       []RunFailure
}

// ReminderRun is a persisted run summary.
type ReminderRun struct {
	ID             uuid.UUID
	RunDate        calendar.Date
	StartedAt      time.Time
	DurationMS     int64
	Success        bool
	UsersChecked   int
	Sent           int
	Failed         int
	SkippedRecords int
	ErrorMessage   sql.NullString
	Failures       pqtype.NullRawMessage
}

// InsertReminderRun records one completed pass.
func (q *Queries) InsertReminderRun(ctx context.Context, p InsertRunParams) (uuid.UUID, error) {
	failures := pqtype.NullRawMessage{}
	if len(p.Failures) > 0 {
		raw, err := json.Marshal(p.Failures)
		if err != nil {
			return uuid.Nil, fmt.Errorf("InsertReminderRun: marshal failures: %w", err)
		}
		failures = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	var id uuid.UUID
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO reminder_runs
			(run_date, started_at, duration_ms, success, users_checked, sent, failed, skipped_records, error_message, failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		p.RunDate.String(), p.StartedAt, p.Duration.Milliseconds(), p.Success,
		p.UsersChecked, p.Sent, p.Failed, p.SkippedRecords,
		nullString(p.ErrorMessage), failures,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("InsertReminderRun: %w", err)
	}
	return id, nil
}

// ListRecentRuns returns the newest runs first.
func (q *Queries) ListRecentRuns(ctx context.Context, limit int) ([]ReminderRun, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, run_date, started_at, duration_ms, success, users_checked, sent, failed,
		       skipped_records, error_message, failures
		FROM reminder_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRecentRuns: %w", err)
	}
	defer rows.Close()

	var out []ReminderRun
	for rows.Next() {
		var (
			r    ReminderRun
			date time.Time
		)
		if err := rows.Scan(&r.ID, &date, &r.StartedAt, &r.DurationMS, &r.Success,
			&r.UsersChecked, &r.Sent, &r.Failed, &r.SkippedRecords, &r.ErrorMessage, &r.Failures); err != nil {
			return nil, fmt.Errorf("ListRecentRuns: scan: %w", err)
		}
		r.RunDate = calendar.FromTime(date)
		out = append(out, r)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/bornify-backend/internal/calendar"
)

// ErrNotFound is returned when a lookup matches no row, or matches a row the
// caller does not own.
var ErrNotFound = errors.New("store: not found")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs single statements against a DBTX. Store wraps it for the
// operations that need a transaction.
type Queries struct {
	db DBTX
}

// WithTx returns a Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// ─── MODELS ──────────────────────────────────────────────────────────────────

// User is an account holder. DOB is nil until the user provides it.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	DOB          *calendar.Date
	GoogleID     sql.NullString
	Verified     bool
	OTPHash      sql.NullString
	OTPExpiresAt sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Birthday is one tracked birthday owned by a user.
type Birthday struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Name             string
	BirthDate        calendar.Date
	Relation         string
	Note             string
	ImageURL         sql.NullString
	ImageKey         sql.NullString
	NotifyBeforeDays int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ─── SCAN HELPERS ────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, email, name, dob, google_id, verified, otp_hash, otp_expires_at, created_at, updated_at`

func scanUser(row rowScanner) (User, error) {
	var (
		u   User
		dob sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &dob, &u.GoogleID, &u.Verified,
		&u.OTPHash, &u.OTPExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if dob.Valid {
		d := calendar.FromTime(dob.Time)
		u.DOB = &d
	}
	return u, nil
}

const birthdayColumns = `id, user_id, name, birth_date, relation, note, image_url, image_key, notify_before_days, created_at, updated_at`

func scanBirthday(row rowScanner) (Birthday, error) {
	var (
		b    Birthday
		date time.Time
	)
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &date, &b.Relation, &b.Note,
		&b.ImageURL, &b.ImageKey, &b.NotifyBeforeDays, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Birthday{}, ErrNotFound
	}
	if err != nil {
		return Birthday{}, err
	}
	b.BirthDate = calendar.FromTime(date)
	return b, nil
}

// DATE parameters are sent as "YYYY-MM-DD" text so the server's TimeZone
// setting can never shift them.
func nullDate(d *calendar.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/bornify-backend/internal/calendar"
)

// ─── INPUT TYPES ─────────────────────────────────────────────────────────────

// UpsertPendingUserParams carries the signup form and the freshly issued code.
type UpsertPendingUserParams struct {
	Email        string
	Name         string
	DOB          *calendar.Date
	OTPHash      string
	OTPExpiresAt time.Time
}

// GoogleUserParams is the verified identity from a Google ID token.
type GoogleUserParams struct {
	Email    string
	Name     string
	GoogleID string
}

// ─── QUERIES ─────────────────────────────────────────────────────────────────

// ListUsers returns every account in creation order. The reminder run walks
// this list once per pass.
func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUsers: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	return users, nil
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByEmail matches case-insensitively; emails are stored lower-cased.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email)))
}

// UpsertPendingUser creates or overwrites an account from the signup form. The
// account is marked unverified until the emailed code is confirmed.
func (q *Queries) UpsertPendingUser(ctx context.Context, p UpsertPendingUserParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `
		INSERT INTO users (email, name, dob, verified, otp_hash, otp_expires_at)
		VALUES ($1, $2, $3, FALSE, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			name           = EXCLUDED.name,
			dob            = EXCLUDED.dob,
			verified       = FALSE,
			otp_hash       = EXCLUDED.otp_hash,
			otp_expires_at = EXCLUDED.otp_expires_at,
			updated_at     = NOW()
		RETURNING `+userColumns,
		normalizeEmail(p.Email), strings.TrimSpace(p.Name), nullDate(p.DOB), p.OTPHash, p.OTPExpiresAt))
}

// SetOTP stores a new code hash for an existing account.
func (q *Queries) SetOTP(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE users SET otp_hash = $2, otp_expires_at = $3, updated_at = NOW()
		WHERE id = $1`, id, hash, expiresAt)
	if err != nil {
		return fmt.Errorf("SetOTP: %w", err)
	}
	return checkAffected(res)
}

// MarkVerified flags the account verified and clears any pending code.
func (q *Queries) MarkVerified(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `
		UPDATE users SET verified = TRUE, otp_hash = NULL, otp_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id))
}

// UpdateDOB sets the account holder's own date of birth.
func (q *Queries) UpdateDOB(ctx context.Context, id uuid.UUID, dob calendar.Date) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `
		UPDATE users SET dob = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, dob.String()))
}

func (q *Queries) createGoogleUser(ctx context.Context, p GoogleUserParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `
		INSERT INTO users (email, name, google_id, verified)
		VALUES ($1, $2, $3, TRUE)
		RETURNING `+userColumns,
		normalizeEmail(p.Email), strings.TrimSpace(p.Name), p.GoogleID))
}

func (q *Queries) linkGoogleID(ctx context.Context, id uuid.UUID, googleID string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `
		UPDATE users SET google_id = $2, verified = TRUE, otp_hash = NULL, otp_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, googleID))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nyashahama/bornify-backend/internal/calendar"
)

// ─── INPUT TYPES ─────────────────────────────────────────────────────────────

// CreateBirthdayParams holds a validated new birthday.
type CreateBirthdayParams struct {
	UserID           uuid.UUID
	Name             string
	BirthDate        calendar.Date
	Relation         string
	Note             string
	ImageURL         string
	ImageKey         string
	NotifyBeforeDays int
}

// UpdateBirthdayParams applies only the non-nil fields.
type UpdateBirthdayParams struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Name             *string
	BirthDate        *calendar.Date
	Relation         *string
	Note             *string
	ImageURL         *string
	ImageKey         *string
	NotifyBeforeDays *int
}

// ─── QUERIES ─────────────────────────────────────────────────────────────────

// ListBirthdaysByUser returns a user's birthdays ordered by birth date.
func (q *Queries) ListBirthdaysByUser(ctx context.Context, userID uuid.UUID) ([]Birthday, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+birthdayColumns+` FROM birthdays
		WHERE user_id = $1
		ORDER BY birth_date, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListBirthdaysByUser: %w", err)
	}
	defer rows.Close()

	var out []Birthday
	for rows.Next() {
		b, err := scanBirthday(rows)
		if err != nil {
			return nil, fmt.Errorf("ListBirthdaysByUser: scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListBirthdaysByUser: %w", err)
	}
	return out, nil
}

// GetBirthday returns ErrNotFound unless the row exists and belongs to userID.
func (q *Queries) GetBirthday(ctx context.Context, id, userID uuid.UUID) (Birthday, error) {
	return scanBirthday(q.db.QueryRowContext(ctx, `
		SELECT `+birthdayColumns+` FROM birthdays
		WHERE id = $1 AND user_id = $2`, id, userID))
}

func (q *Queries) CreateBirthday(ctx context.Context, p CreateBirthdayParams) (Birthday, error) {
	return scanBirthday(q.db.QueryRowContext(ctx, `
		INSERT INTO birthdays (user_id, name, birth_date, relation, note, image_url, image_key, notify_before_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+birthdayColumns,
		p.UserID, p.Name, p.BirthDate.String(), p.Relation, p.Note,
		nullString(p.ImageURL), nullString(p.ImageKey), p.NotifyBeforeDays))
}

// UpdateBirthday patches the provided fields. COALESCE keeps the stored value
// for every nil pointer.
func (q *Queries) UpdateBirthday(ctx context.Context, p UpdateBirthdayParams) (Birthday, error) {
	var date *string
	if p.BirthDate != nil {
		s := p.BirthDate.String()
		date = &s
	}
	return scanBirthday(q.db.QueryRowContext(ctx, `
		UPDATE birthdays SET
			name               = COALESCE($3, name),
			birth_date         = COALESCE($4::date, birth_date),
			relation           = COALESCE($5, relation),
			note               = COALESCE($6, note),
			image_url          = COALESCE($7, image_url),
			image_key          = COALESCE($8, image_key),
			notify_before_days = COALESCE($9, notify_before_days),
			updated_at         = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+birthdayColumns,
		p.ID, p.UserID, p.Name, date, p.Relation, p.Note, p.ImageURL, p.ImageKey, p.NotifyBeforeDays))
}

// DeleteBirthday removes a row owned by userID and returns it so the caller
// can clean up the stored photo.
func (q *Queries) DeleteBirthday(ctx context.Context, id, userID uuid.UUID) (Birthday, error) {
	return scanBirthday(q.db.QueryRowContext(ctx, `
		DELETE FROM birthdays
		WHERE id = $1 AND user_id = $2
		RETURNING `+birthdayColumns, id, userID))
}

// Package reminder decides which tracked birthdays need a reminder on a given
// day and folds them into one digest per user. It is pure: no I/O, no clock,
// no logging. The worker maps store rows into Tracked values before calling in,
// which keeps this package free of database types.
package reminder

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nyashahama/bornify-backend/internal/calendar"
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// DefaultLeadDays is used when a birthday is stored without a lead time.
const DefaultLeadDays = 1

// MaxLeadDays bounds the lead time. A larger value could never match, since the
// next occurrence is at most 366 days away.
const MaxLeadDays = 365

// ErrInvalidRecord marks a tracked birthday that cannot be evaluated, such as
// one with a negative lead time or an impossible month/day.
var ErrInvalidRecord = errors.New("reminder: invalid record")

// Tracked is the slice of a stored birthday the matcher needs. Only the month
// and day of BirthDate take part in matching; the year is for display.
type Tracked struct {
	ID        uuid.UUID
	Name      string
	BirthDate calendar.Date
	LeadDays  int
}

// ─── MATCHING ─────────────────────────────────────────────────────────────────

// IsDue reports whether b's reminder fires on today, i.e. whether today is
// exactly b.LeadDays before b's next annual occurrence. It returns an error
// wrapping ErrInvalidRecord instead of a verdict for records it cannot judge.
func IsDue(today calendar.Date, b Tracked) (bool, error) {
	if err := validate(b); err != nil {
		return false, err
	}
	occ, err := calendar.NextOccurrence(today, b.BirthDate.Month, b.BirthDate.Day)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, b.ID, err)
	}
	return calendar.ReminderDate(occ, b.LeadDays).Equal(today), nil
}

func validate(b Tracked) error {
	switch {
	case b.LeadDays < 0:
		return fmt.Errorf("%w: %s: negative lead days %d", ErrInvalidRecord, b.ID, b.LeadDays)
	case b.LeadDays > MaxLeadDays:
		return fmt.Errorf("%w: %s: lead days %d exceeds %d", ErrInvalidRecord, b.ID, b.LeadDays, MaxLeadDays)
	}
	return nil
}

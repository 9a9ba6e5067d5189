package reminder

import (
	"github.com/google/uuid"
	"github.com/nyashahama/bornify-backend/internal/calendar"
)

// Entry is one due birthday inside a digest.
type Entry struct {
	BirthdayID uuid.UUID
	Name       string
	LeadDays   int           // days from the run date until the birthday
	Occurrence calendar.Date // the birthday being announced
}

// Rejected is a record BuildDigest could not evaluate.
type Rejected struct {
	BirthdayID uuid.UUID
	Err        error
}

// Digest is everything due for one user on one day. An empty Entries slice is
// the normal "nothing to send" outcome.
type Digest struct {
	Date     calendar.Date
	Entries  []Entry
	Rejected []Rejected
}

// Empty reports whether there is nothing to send.
func (d Digest) Empty() bool { return len(d.Entries) == 0 }

// BuildDigest filters birthdays down to the ones due on today, keeping input
// order. Records IsDue rejects are collected in Rejected and do not prevent
// the remaining entries from being evaluated.
func BuildDigest(today calendar.Date, birthdays []Tracked) Digest {
	d := Digest{Date: today}
	for _, b := range birthdays {
		due, err := IsDue(today, b)
		if err != nil {
			d.Rejected = append(d.Rejected, Rejected{BirthdayID: b.ID, Err: err})
			continue
		}
		if !due {
			continue
		}
		d.Entries = append(d.Entries, Entry{
			BirthdayID: b.ID,
			Name:       b.Name,
			LeadDays:   b.LeadDays,
			Occurrence: today.AddDays(b.LeadDays),
		})
	}
	return d
}

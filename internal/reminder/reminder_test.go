package reminder_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyashahama/bornify-backend/internal/calendar"
	"github.com/nyashahama/bornify-backend/internal/reminder"
)

func tracked(name string, y int, m time.Month, d, lead int) reminder.Tracked {
	return reminder.Tracked{
		ID:        uuid.New(),
		Name:      name,
		BirthDate: calendar.Date{Year: y, Month: m, Day: d},
		LeadDays:  lead,
	}
}

// ─── IsDue ────────────────────────────────────────────────────────────────────

func TestIsDue_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		today calendar.Date
		b     reminder.Tracked
		want  bool
	}{
		{"day before, lead 1", calendar.MustNew(2025, time.June, 14), tracked("Ana", 1990, time.June, 15, 1), true},
		{"two days before, lead 1", calendar.MustNew(2025, time.June, 13), tracked("Ana", 1990, time.June, 15, 1), false},
		{"on the day, lead 1", calendar.MustNew(2025, time.June, 15), tracked("Ana", 1990, time.June, 15, 1), false},
		{"year rollover", calendar.MustNew(2025, time.December, 29), tracked("Noor", 1985, time.January, 1, 3), true},
		{"year rollover, one day off", calendar.MustNew(2025, time.December, 30), tracked("Noor", 1985, time.January, 1, 3), false},
		{"leap day in common year, lead 0", calendar.MustNew(2025, time.February, 28), tracked("Leo", 2000, time.February, 29, 0), true},
		{"leap day in leap year, lead 0 on the 28th", calendar.MustNew(2028, time.February, 28), tracked("Leo", 2000, time.February, 29, 0), false},
		{"leap day in leap year, lead 0", calendar.MustNew(2028, time.February, 29), tracked("Leo", 2000, time.February, 29, 0), true},
		{"lead 0 on the birthday", calendar.MustNew(2025, time.March, 3), tracked("Kim", 1999, time.March, 3, 0), true},
		{"birth year is ignored", calendar.MustNew(2025, time.June, 14), tracked("Baby", 2030, time.June, 15, 1), true},
		{"lead pushes reminder a full year back", calendar.MustNew(2025, time.January, 2), tracked("Max", 1970, time.January, 2, 365), false},
		{"lead spans almost a full year", calendar.MustNew(2025, time.January, 2), tracked("Max", 1970, time.January, 1, 364), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reminder.IsDue(tt.today, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsDue_InvalidRecords(t *testing.T) {
	today := calendar.MustNew(2025, time.June, 14)
	for _, b := range []reminder.Tracked{
		tracked("negative", 1990, time.June, 15, -1),
		tracked("too far", 1990, time.June, 15, reminder.MaxLeadDays+1),
		tracked("feb 30", 1990, time.February, 30, 1),
		tracked("zero date", 0, 0, 0, 1),
	} {
		t.Run(b.Name, func(t *testing.T) {
			due, err := reminder.IsDue(today, b)
			assert.False(t, due)
			assert.True(t, errors.Is(err, reminder.ErrInvalidRecord), "got %v", err)
		})
	}
}

func TestIsDue_IsDeterministic(t *testing.T) {
	today := calendar.MustNew(2025, time.December, 29)
	b := tracked("Noor", 1985, time.January, 1, 3)
	for i := 0; i < 10; i++ {
		due, err := reminder.IsDue(today, b)
		require.NoError(t, err)
		assert.True(t, due)
	}
}

// Over two years exactly one reference day per annual occurrence fires.
func TestIsDue_FiresOncePerOccurrence(t *testing.T) {
	b := tracked("Leo", 2000, time.February, 29, 5)
	start := calendar.MustNew(2027, time.January, 1)

	var fired []calendar.Date
	for i := 0; i < 731; i++ {
		day := start.AddDays(i)
		due, err := reminder.IsDue(day, b)
		require.NoError(t, err)
		if due {
			fired = append(fired, day)
		}
	}
	assert.Equal(t, []calendar.Date{
		calendar.MustNew(2027, time.February, 23), // Feb 28 2027 - 5
		calendar.MustNew(2028, time.February, 24), // Feb 29 2028 - 5
	}, fired)
}

// ─── BuildDigest ──────────────────────────────────────────────────────────────

func TestBuildDigest_TwoDueSameDay(t *testing.T) {
	today := calendar.MustNew(2025, time.June, 14)
	a := tracked("Ana", 1990, time.June, 15, 1)
	skip := tracked("Later", 1990, time.August, 1, 1)
	b := tracked("Ben", 1992, time.June, 17, 3)

	d := reminder.BuildDigest(today, []reminder.Tracked{a, skip, b})

	require.Len(t, d.Entries, 2)
	assert.False(t, d.Empty())
	assert.Equal(t, a.ID, d.Entries[0].BirthdayID)
	assert.Equal(t, 1, d.Entries[0].LeadDays)
	assert.Equal(t, calendar.MustNew(2025, time.June, 15), d.Entries[0].Occurrence)
	assert.Equal(t, b.ID, d.Entries[1].BirthdayID)
	assert.Equal(t, "Ben", d.Entries[1].Name)
	assert.Equal(t, calendar.MustNew(2025, time.June, 17), d.Entries[1].Occurrence)
	assert.Empty(t, d.Rejected)
}

func TestBuildDigest_NothingDueIsEmptyNotError(t *testing.T) {
	today := calendar.MustNew(2025, time.June, 14)
	d := reminder.BuildDigest(today, []reminder.Tracked{tracked("Later", 1990, time.August, 1, 1)})
	assert.True(t, d.Empty())
	assert.Empty(t, d.Rejected)

	assert.True(t, reminder.BuildDigest(today, nil).Empty())
}

func TestBuildDigest_CorruptRecordDoesNotHideOthers(t *testing.T) {
	today := calendar.MustNew(2025, time.June, 14)
	bad := tracked("Bad", 1990, time.June, 15, -4)
	good := tracked("Good", 1990, time.June, 15, 1)

	d := reminder.BuildDigest(today, []reminder.Tracked{bad, good})

	require.Len(t, d.Entries, 1)
	assert.Equal(t, good.ID, d.Entries[0].BirthdayID)
	require.Len(t, d.Rejected, 1)
	assert.Equal(t, bad.ID, d.Rejected[0].BirthdayID)
	assert.ErrorIs(t, d.Rejected[0].Err, reminder.ErrInvalidRecord)
}

// A non-empty digest holds only entries IsDue accepts; an empty one means none
// of the inputs were due.
func TestBuildDigest_AgreesWithIsDue(t *testing.T) {
	birthdays := []reminder.Tracked{
		tracked("A", 1990, time.January, 1, 0),
		tracked("B", 1990, time.January, 3, 2),
		tracked("C", 1990, time.March, 10, 7),
		tracked("D", 2000, time.February, 29, 1),
	}
	start := calendar.MustNew(2025, time.January, 1)
	for i := 0; i < 365; i++ {
		day := start.AddDays(i)
		d := reminder.BuildDigest(day, birthdays)

		want := 0
		for _, b := range birthdays {
			due, err := reminder.IsDue(day, b)
			require.NoError(t, err)
			if due {
				want++
			}
		}
		assert.Len(t, d.Entries, want, day.String())
		assert.Equal(t, want == 0, d.Empty(), day.String())
	}
}

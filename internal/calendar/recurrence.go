package calendar

import (
	"fmt"
	"time"
)

// OccurrenceIn returns the date on which an annual month/day falls in year.
// Feb 29 resolves to Feb 28 in common years.
func OccurrenceIn(year int, m time.Month, day int) (Date, error) {
	if !validMonthDay(m, day) {
		return Date{}, fmt.Errorf("%w: month %d day %d", ErrInvalidDate, int(m), day)
	}
	if m == time.February && day == 29 && !IsLeap(year) {
		day = 28
	}
	return Date{Year: year, Month: m, Day: day}, nil
}

// NextOccurrence returns the first occurrence of the annual month/day that is
// on or after ref: this year's if it has not passed yet, next year's otherwise.
// The result is never before ref and at most 366 days after it.
func NextOccurrence(ref Date, m time.Month, day int) (Date, error) {
	occ, err := OccurrenceIn(ref.Year, m, day)
	if err != nil {
		return Date{}, err
	}
	if occ.Before(ref) {
		return OccurrenceIn(ref.Year+1, m, day)
	}
	return occ, nil
}

// ReminderDate returns the day leadDays before occurrence.
func ReminderDate(occurrence Date, leadDays int) Date {
	return occurrence.AddDays(-leadDays)
}

// TurningAge returns the age someone born on birth reaches at occurrence,
// which must be one of birth's annual occurrences.
func TurningAge(birth, occurrence Date) int {
	return occurrence.Year - birth.Year
}

// validMonthDay reports whether m/day exists in at least one year, i.e. is
// valid in a leap year.
func validMonthDay(m time.Month, day int) bool {
	if m < time.January || m > time.December || day < 1 {
		return false
	}
	return day <= DaysIn(2000, m)
}

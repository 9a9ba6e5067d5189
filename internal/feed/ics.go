// Package feed converts tracked birthdays to and from the interchange formats
// calendar and address-book apps understand: an iCalendar subscription feed
// and vCard imports.
package feed

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/nyashahama/bornify-backend/internal/calendar"
)

const (
	prodID    = "-//Bornify//Birthday Feed//EN"
	uidDomain = "bornify"

	// stubCalendar is served when a user tracks nothing; the encoder refuses
	// a calendar without components and clients reject an empty body.
	stubCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + prodID + "\r\nEND:VCALENDAR\r\n"
)

// Event is one tracked birthday rendered as a yearly all-day event.
type Event struct {
	ID        uuid.UUID
	Name      string
	BirthDate calendar.Date
	LeadDays  int
}

// WriteICS encodes events as a VCALENDAR with one recurring VEVENT per
// birthday and a DISPLAY alarm LeadDays before each occurrence.
func WriteICS(w io.Writer, calName string, events []Event, now time.Time) error {
	if len(events) == 0 {
		_, err := io.WriteString(w, stubCalendar)
		return err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(ical.PropMethod, "PUBLISH")
	cal.Props.SetText("X-WR-CALNAME", calName)

	refresh := ical.NewProp("REFRESH-INTERVAL")
	refresh.SetDuration(12 * time.Hour)
	cal.Props.Set(refresh)

	stamp := ical.NewProp(ical.PropDateTimeStamp)
	stamp.SetDateTime(now.UTC())

	for _, e := range events {
		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, fmt.Sprintf("%s@%s", e.ID, uidDomain))
		ev.Props.Set(stamp)

		summary := fmt.Sprintf("🎂 %s's birthday", e.Name)
		ev.Props.SetText(ical.PropSummary, summary)

		start := ical.NewProp(ical.PropDateTimeStart)
		start.SetDate(e.BirthDate.Time())
		ev.Props.Set(start)

		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = recurrenceRule(e.BirthDate)
		ev.Props.Set(rrule)

		ev.Props.SetText(ical.PropTransparency, "TRANSPARENT")

		addAlarm(ev, alarmTrigger(e.LeadDays), summary)
		cal.Children = append(cal.Children, ev.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return fmt.Errorf("feed: encode calendar: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// recurrenceRule recurs yearly on the birth month/day. Feb 29 uses "last day
// of February" so common years land on Feb 28, the same day reminders use.
func recurrenceRule(d calendar.Date) string {
	if d.Month == time.February && d.Day == 29 {
		return "FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=-1"
	}
	return "FREQ=YEARLY"
}

func alarmTrigger(lead int) string {
	if lead <= 0 {
		return "PT0S"
	}
	return fmt.Sprintf("-P%dD", lead)
}

func addAlarm(ev *ical.Event, trigger, description string) {
	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, "DISPLAY")
	alarm.Props.SetText(ical.PropDescription, description)

	// Set the value directly to avoid a VALUE=TEXT parameter.
	tp := ical.NewProp(ical.PropTrigger)
	tp.Value = trigger
	alarm.Props.Set(tp)

	ev.Children = append(ev.Children, alarm)
}

package feed

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-vcard"

	"github.com/nyashahama/bornify-backend/internal/calendar"
)

// UnknownYear stands in for cards whose BDAY omits the year ("--0615"). It is
// a leap year so a "--0229" birthday survives.
const UnknownYear = 1904

// MaxCards bounds a single import.
const MaxCards = 2000

// Contact is a card that carried a usable birthday.
type Contact struct {
	Name      string
	BirthDate calendar.Date
	YearKnown bool
}

// ErrNoCards is returned when the input holds no BEGIN:VCARD block at all.
var ErrNoCards = errors.New("feed: no vCards found")

// ImportResult summarises a vCard import.
type ImportResult struct {
	Contacts []Contact
	Skipped  int // cards without a name or a parseable BDAY, or undecodable
}

// ParseVCards decodes every card in r. Undecodable cards and cards without a
// birthday are counted in Skipped. Input without a single card, or a read
// failure before the first card, is an error.
func ParseVCards(r io.Reader) (ImportResult, error) {
	var res ImportResult
	dec := vcard.NewDecoder(r)

	for seen := 0; seen < MaxCards; seen++ {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			if seen == 0 {
				return ImportResult{}, ErrNoCards
			}
			break
		}
		if err != nil {
			if seen == 0 {
				return ImportResult{}, fmt.Errorf("feed: decode vcard: %w", err)
			}
			res.Skipped++
			continue
		}

		name := cardName(card)
		bday := card.Get(vcard.FieldBirthday)
		if name == "" || bday == nil || bday.Value == "" {
			res.Skipped++
			continue
		}
		date, yearKnown, err := parseBirthday(bday.Value)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Contacts = append(res.Contacts, Contact{Name: name, BirthDate: date, YearKnown: yearKnown})
	}
	return res, nil
}

// cardName prefers FN, then the structured N.
func cardName(card vcard.Card) string {
	if fn := strings.TrimSpace(card.PreferredValue(vcard.FieldFormattedName)); fn != "" {
		return fn
	}
	if n := card.Name(); n != nil {
		return strings.TrimSpace(strings.Join(strings.Fields(n.GivenName+" "+n.FamilyName), " "))
	}
	return ""
}

var (
	fullLayouts   = []string{"2006-01-02", "20060102", time.RFC3339, "2006-01-02T15:04:05", "20060102T150405Z"}
	noYearLayouts = []string{"--0102", "--01-02"}
)

// parseBirthday understands the vCard 3 and 4 BDAY forms, with and without
// a year.
func parseBirthday(v string) (calendar.Date, bool, error) {
	v = strings.TrimSpace(v)
	for _, layout := range fullLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return calendar.FromTime(t), true, nil
		}
	}
	for _, layout := range noYearLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			d, err := calendar.New(UnknownYear, t.Month(), t.Day())
			return d, false, err
		}
	}
	return calendar.Date{}, false, fmt.Errorf("%w: %q", calendar.ErrInvalidDate, v)
}

package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

const minutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
// Values at or above 24h denote the following day (overnight shifts).
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (or "HH:MM:SS", seconds ignored).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// MustTimeOfDay is ParseTimeOfDay for literals; it panics on bad input.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String renders the value as "HH:MM", wrapping past midnight.
func (t TimeOfDay) String() string {
	m := int(t) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// On anchors the time of day to the given calendar date in loc.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, date.Location()).Add(time.Duration(t) * time.Minute)
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// DateOf returns UTC midnight of the UTC calendar day containing t.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Clock abstracts the current time so services can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns T.
type Fixed struct{ T time.Time }

func (f Fixed) Now() time.Time { return f.T }

// IsToday reports whether t falls on the clock's current date.
func IsToday(c Clock, t time.Time) bool {
	return SameDay(c.Now(), t)
}

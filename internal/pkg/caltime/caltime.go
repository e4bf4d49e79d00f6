package caltime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Date is a calendar day without a time or a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes out-of-range values the same way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a date string in "YYYY-MM-DD" format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// AddDays returns the date n calendar days after d. n may be negative.
func (d Date) AddDays(n int) Date {
	return DateOf(d.midnight().AddDate(0, 0, n))
}

// Weekday returns the day of the week d falls on.
func (d Date) Weekday() time.Weekday {
	return d.midnight().Weekday()
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(u Date) int {
	return d.midnight().Compare(u.midnight())
}

func (d Date) Before(u Date) bool { return d.Compare(u) < 0 }
func (d Date) After(u Date) bool  { return d.Compare(u) > 0 }

// DaysUntil returns the number of days from d to u (negative when u is earlier).
func (d Date) DaysUntil(u Date) int {
	return int(u.midnight().Sub(d.midnight()).Hours() / 24)
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return d.midnight().Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Range returns every day from "from" to "to", both inclusive.
func Range(from, to Date) []Date {
	if to.Before(from) {
		return nil
	}
	days := make([]Date, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// ParseResult tells an empty input apart from a malformed one.
type ParseResult int

const (
	Empty ParseResult = iota
	Invalid
	Valid
)

func (r ParseResult) String() string {
	switch r {
	case Empty:
		return "empty"
	case Invalid:
		return "invalid"
	default:
		return "valid"
	}
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

var (
	StartOfDay = TimeOfDay{Hour: 0, Minute: 0}
	EndOfDay   = TimeOfDay{Hour: 23, Minute: 59}
)

// ParseTimeOfDay parses "H:mm" or "HH:mm" ("." is accepted as separator).
// It never panics.
func ParseTimeOfDay(s string) (TimeOfDay, ParseResult) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, Empty
	}

	sep := strings.IndexAny(s, ":.")
	if sep < 1 || sep > 2 || len(s)-sep-1 != 2 {
		return TimeOfDay{}, Invalid
	}

	hour, ok := parseDigits(s[:sep])
	if !ok || hour > 23 {
		return TimeOfDay{}, Invalid
	}
	minute, ok := parseDigits(s[sep+1:])
	if !ok || minute > 59 {
		return TimeOfDay{}, Invalid
	}

	return TimeOfDay{Hour: hour, Minute: minute}, Valid
}

func parseDigits(s string) (int, bool) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// TimeOfDayOf returns the wall-clock time of t in loc.
func TimeOfDayOf(t time.Time, loc *time.Location) TimeOfDay {
	local := t.In(loc)
	return TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) Before(u TimeOfDay) bool { return t.minutes() < u.minutes() }
func (t TimeOfDay) After(u TimeOfDay) bool  { return t.minutes() > u.minutes() }

// String formats t as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Combine places a wall-clock time on a day in loc.
func Combine(d Date, t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

// DateIn returns the calendar day of t in loc.
func DateIn(t time.Time, loc *time.Location) Date {
	return DateOf(t.In(loc))
}

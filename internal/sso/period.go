package sso

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the calendar unit of an inactivity window.
type Unit int

const (
	Day Unit = iota
	Month
	Year
)

func (u Unit) String() string {
	switch u {
	case Day:
		return "d"
	case Month:
		return "m"
	case Year:
		return "y"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// Period is an inactivity window such as "30d" or "3m".
type Period struct {
	Value int
	Unit  Unit
}

func (p Period) String() string {
	return strconv.Itoa(p.Value) + p.Unit.String()
}

// ParsePeriod reads "<int><d|m|y>". A bare integer is a number of days.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Period{}, fmt.Errorf("%w: empty inactivity period", ErrInvalidMetadata)
	}
	unit := Day
	digits := s
	switch s[len(s)-1] {
	case 'd':
		digits = s[:len(s)-1]
	case 'm':
		unit, digits = Month, s[:len(s)-1]
	case 'y':
		unit, digits = Year, s[:len(s)-1]
	}
	n, err := strconv.Atoi(strings.TrimSpace(digits))
	if err != nil || n < 0 {
		return Period{}, fmt.Errorf("%w: inactivity period %q", ErrInvalidMetadata, s)
	}
	return Period{Value: n, Unit: unit}, nil
}

// Deadline returns the last instant still inside the window that opened at
// from. Months and years are calendar arithmetic: a day past the end of the
// target month clamps to its last day, so Jan 31 + 1m is Feb 28 (or 29).
func (p Period) Deadline(from time.Time) time.Time {
	switch p.Unit {
	case Month:
		return addMonths(from, p.Value)
	case Year:
		return addMonths(from, 12*p.Value)
	default:
		return from.AddDate(0, 0, p.Value)
	}
}

func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

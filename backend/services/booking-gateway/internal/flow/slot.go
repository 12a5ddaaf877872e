package flow

import (
	"fmt"
	"time"
)

// SlotRecord is one hour-long charging opportunity at a port.
type SlotRecord struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Available bool      `json:"available"`
	Past      bool      `json:"past"`
}

// Selectable reports whether the slot can be picked by the user.
func (s SlotRecord) Selectable() bool {
	return s.Available && !s.Past
}

// Booked is true for future slots that somebody already holds.
func (s SlotRecord) Booked() bool {
	return !s.Available && !s.Past
}

// Duration is the length of the slot; zero or negative for degenerate records.
func (s SlotRecord) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("flow: parse date %q: %w", s, err)
	}
	return DateOf(t, time.UTC), nil
}

// Before orders dates chronologically.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// AddDays shifts the date by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Midnight(time.UTC).AddDate(0, 0, n), time.UTC)
}

// Midnight is the first instant of the date in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

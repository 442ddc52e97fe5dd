// Package period maps timestamps to calendar buckets. All functions use the
// timestamp's own location; callers normalise to the reporting timezone
// before bucketing.
package period

import (
	"fmt"
	"strings"
	"time"
)

// Granularity selects the calendar bucket size.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ParseGranularity accepts daily, weekly or monthly (case-insensitive).
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Daily, Weekly, Monthly:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q (want daily, weekly or monthly)", s)
}

// Key identifies a calendar bucket. Keys of the same granularity sort
// lexicographically in chronological order.
type Key string

const dayLayout = "2006-01-02"

// KeyFor returns the bucket key for t:
//
//	daily   2025-03-10
//	weekly  2025-W11   (ISO 8601 week-numbering year and week)
//	monthly 2025-03
//
// An unknown granularity falls back to daily.
func KeyFor(t time.Time, g Granularity) Key {
	switch g {
	case Weekly:
		year, week := t.ISOWeek()
		return Key(fmt.Sprintf("%04d-W%02d", year, week))
	case Monthly:
		return Key(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
	default:
		return Key(t.Format(dayLayout))
	}
}

// DayKey is KeyFor(t, Daily).
func DayKey(t time.Time) Key {
	return Key(t.Format(dayLayout))
}

// StartOf returns midnight at the beginning of t's bucket. Weekly buckets
// start on Monday.
func StartOf(t time.Time, g Granularity) time.Time {
	day := StartOfDay(t)
	switch g {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return day
	}
}

// StartOfDay returns midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Days returns midnight of every calendar day from start's day to end's day
// inclusive, in start's location. It returns nil when end is before start.
func Days(start, end time.Time) []time.Time {
	first := StartOfDay(start)
	last := StartOfDay(end.In(start.Location()))
	if last.Before(first) {
		return nil
	}
	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

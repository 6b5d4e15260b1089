// Package entitlement implements plan limits, calendar-period usage
// bucketing and the usage-increment transition for subscriptions.
package entitlement

import (
	"fmt"
	"time"
)

// WeekID returns the ISO-8601 week identifier for t, e.g. "2026-W01". The
// week containing the year's first Thursday is week 1, so late-December
// dates can belong to week 1 of the following year and early-January dates
// to the last week of the previous one. Naive week-of-year formulas get
// these boundaries wrong, which is why the identifier carries the ISO year
// rather than the calendar year.
func WeekID(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthID returns the calendar-month identifier for t, e.g. "2026-03".
func MonthID(t time.Time) string {
	return t.Format("2006-01")
}

// DateID returns the calendar-date identifier for t, e.g. "2026-03-07".
func DateID(t time.Time) string {
	return t.Format("2006-01-02")
}

// SameISOWeek reports whether a and b fall in the same ISO week.
func SameISOWeek(a, b time.Time) bool {
	return WeekID(a) == WeekID(b)
}

// SameMonth reports whether a and b fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	return MonthID(a) == MonthID(b)
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	return DateID(a) == DateID(b)
}

// Package timeutil provides UTC calendar-day helpers. Streaks, check-ins
// and evolution stages are all defined over UTC days regardless of where
// the user is, so day arithmetic lives in one place.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// StartOfDay returns 00:00:00 UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59.999999999 UTC of the day containing t.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999999999, time.UTC)
}

// IsSameDay checks if two times fall on the same UTC calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	u1, u2 := t1.UTC(), t2.UTC()
	return u1.Year() == u2.Year() && u1.YearDay() == u2.YearDay()
}

// IsConsecutiveDay checks if t2 is the UTC day after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return IsSameDay(t1.UTC().AddDate(0, 0, 1), t2)
}

// DaysBetween returns the absolute number of UTC days between two times.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// DaysSince returns the number of whole UTC days from t to now.
func DaysSince(t time.Time) int {
	return int(StartOfDay(time.Now()).Sub(StartOfDay(t)).Hours() / 24)
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in UTC.
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// FormatRelative returns a human-readable relative time string for chat
// messages.
func FormatRelative(t time.Time) string {
	d := time.Since(t)
	if d < 0 {
		d = -d
	}

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "yesterday"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}

// ParseDate parses a date string (YYYY-MM-DD) as UTC.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(FormatDate, value)
}

// Quiet hours for push-style messages: outside this window the bot keeps
// silent and the notifier reschedules.

// IsSafeNotificationTime checks if it is appropriate to send a message in
// the given location (9:00-22:00 local).
func IsSafeNotificationTime(t time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	hour := t.In(loc).Hour()
	return hour >= 9 && hour < 22
}

package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDay(t *testing.T) {
	ts := time.Date(2025, 3, 14, 17, 45, 12, 500, time.UTC)
	start := StartOfDay(ts)

	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), start)
}

func TestStartOfDay_ConvertsToUTC(t *testing.T) {
	// 23:30 UTC-5 is 04:30 UTC the next day.
	loc := time.FixedZone("UTC-5", -5*60*60)
	ts := time.Date(2025, 3, 14, 23, 30, 0, 0, loc)

	start := StartOfDay(ts)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), start)
}

func TestIsSameDay(t *testing.T) {
	morning := time.Date(2025, 3, 14, 0, 0, 1, 0, time.UTC)
	night := time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)
	nextDay := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.True(t, IsSameDay(morning, night))
	assert.False(t, IsSameDay(night, nextDay))
}

func TestIsConsecutiveDay(t *testing.T) {
	d1 := time.Date(2025, 3, 14, 22, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 3, 15, 6, 0, 0, 0, time.UTC)
	d3 := time.Date(2025, 3, 16, 6, 0, 0, 0, time.UTC)

	assert.True(t, IsConsecutiveDay(d1, d2))
	assert.False(t, IsConsecutiveDay(d1, d3))
	assert.False(t, IsConsecutiveDay(d2, d1))
}

func TestDaysBetween(t *testing.T) {
	d1 := time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 3, 17, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 3, DaysBetween(d1, d2))
	assert.Equal(t, 3, DaysBetween(d2, d1))
	assert.Equal(t, 0, DaysBetween(d1, d1))
}

func TestFormatDateStr(t *testing.T) {
	ts := time.Date(2025, 3, 14, 17, 45, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-14", FormatDateStr(ts))
}

func TestParseDate(t *testing.T) {
	ts, err := ParseDate("2025-03-14")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), ts)

	_, err = ParseDate("14.03.2025")
	assert.Error(t, err)
}

func TestIsSafeNotificationTime(t *testing.T) {
	loc := time.UTC

	assert.True(t, IsSafeNotificationTime(time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC), loc))
	assert.False(t, IsSafeNotificationTime(time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC), loc))
	assert.False(t, IsSafeNotificationTime(time.Date(2025, 3, 14, 5, 0, 0, 0, time.UTC), loc))
}

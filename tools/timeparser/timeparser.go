package timeparser

import (
	"fmt"
	"strings"
	"time"
)

// DayLayout is the day-precision layout the backend expects for readingDate
const DayLayout = "2006-01-02"

// ParseReadingDate attempts to parse a backend reading date with multiple formats.
// Values without an explicit offset are interpreted in loc.
func ParseReadingDate(dateStr string, loc *time.Location) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	if loc == nil {
		loc = time.UTC
	}

	// fractional seconds are accepted after the seconds field even when the layout omits them
	zoned := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z0700",  // +0000
		"2006-01-02T15:04:05Z07",    // +00
		"2006-01-02 15:04:05Z07:00", // SQL timestamptz, +00:00
		"2006-01-02 15:04:05Z0700",  // SQL timestamptz, +0000
		"2006-01-02 15:04:05Z07",    // Postgres text output, +00
	}
	for _, format := range zoned {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}

	local := []string{
		"2006-01-02T15:04:05.000", // ISO without offset, millis
		"2006-01-02T15:04:05",     // ISO without offset
		"2006-01-02 15:04:05",     // SQL timestamp
		DayLayout,                 // YYYY-MM-DD
		"02/01/2006",              // DD/MM/YYYY
	}

	var lastErr error
	for _, format := range local {
		t, err := time.ParseInLocation(format, dateStr, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse reading date '%s': %w", dateStr, lastErr)
}

// SameMonth reports whether a and b fall in the same calendar month as seen from loc
func SameMonth(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	a, b = a.In(loc), b.In(loc)
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// FormatDay formats t with day precision in loc
func FormatDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}

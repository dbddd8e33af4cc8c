package utils

import (
	"time"
)

// FormatTimeISO renders timestamps on the live channel.
func FormatTimeISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

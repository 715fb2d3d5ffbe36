// Package utils provides market-session time helpers.
package utils

import (
	"fmt"
	"time"
)

// SessionTime combines a trading day with a clock string like "09:30" in the
// given location.
func SessionTime(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing session time %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// IsTradingDay reports whether a date falls on a weekday. Exchange holidays
// are not modelled; the feed simply has no data for them.
func IsTradingDay(day time.Time) bool {
	wd := day.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextTradingDay returns the next weekday after day.
func NextTradingDay(day time.Time) time.Time {
	next := day.AddDate(0, 0, 1)
	for !IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

package rollup

import "time"

// Bucket starts are unix timestamps of UTC-truncated windows. Weeks start on
// Monday.

func HourStart(t time.Time) int64 {
	return t.UTC().Truncate(time.Hour).Unix()
}

func DayStart(t time.Time) int64 {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

func WeekStart(t time.Time) int64 {
	u := t.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1)).Unix()
}

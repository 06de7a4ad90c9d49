package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDrawTime is returned for time-of-day values that are not HH:MM or HH:MM:SS.
var ErrInvalidDrawTime = errors.New("invalid draw time")

// NormalizeDrawTime returns the canonical HH:MM:SS form of a time of day.
func NormalizeDrawTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	layout := TimeLayout
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDrawTime, s)
	}
	return t.Format(TimeLayout), nil
}

// CalendarDate truncates a date to midnight UTC, the storage form of draw dates.
func CalendarDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD into a calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// LocalDate returns the calendar day of instant t in the operating location.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return CalendarDate(local.Year(), local.Month(), local.Day())
}

// ISOWeekday returns 1 (Monday) ... 7 (Sunday) for a calendar date.
func ISOWeekday(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// ScheduledInstant combines a calendar date and HH:MM:SS in the operating location.
func ScheduledInstant(date time.Time, drawTime string, loc *time.Location) (time.Time, error) {
	canonical, err := NormalizeDrawTime(drawTime)
	if err != nil {
		return time.Time{}, err
	}
	tod, _ := time.Parse(TimeLayout, canonical)
	return time.Date(date.Year(), date.Month(), date.Day(),
		tod.Hour(), tod.Minute(), tod.Second(), 0, loc), nil
}

// PadNumber left-pads a winning number with zeros to width digits.
func PadNumber(number string, width int) string {
	if len(number) >= width {
		return number
	}
	return strings.Repeat("0", width-len(number)) + number
}

package binder

import (
	"fmt"
	"time"
)

// Timestamp formats t as an 8-character binder version string: two-digit
// year since 2000, month as a letter from 'A', day, hour as a letter from
// 'A', minute. Years outside 2000-2099 cannot be encoded.
func Timestamp(t time.Time) (string, error) {
	year := t.Year() - 2000
	if year < 0 || year > 99 {
		return "", fmt.Errorf("year %d cannot be encoded in a binder timestamp", t.Year())
	}
	return fmt.Sprintf("%02d%c%d%c%d",
		year, 'A'+rune(t.Month())-1, t.Day(), 'A'+rune(t.Hour()), t.Minute()), nil
}

// ParseTimestamp decodes a version string produced by Timestamp. The result
// is in UTC with zero seconds.
func ParseTimestamp(s string) (time.Time, error) {
	var year, day, minute int
	var month, hour rune
	n, err := fmt.Sscanf(s, "%2d%c%d%c%d", &year, &month, &day, &hour, &minute)
	if err != nil || n != 5 {
		return time.Time{}, fmt.Errorf("invalid binder timestamp %q", s)
	}
	if month < 'A' || month > 'L' || hour < 'A' || hour > 'X' || day < 1 || day > 31 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid binder timestamp %q", s)
	}
	return time.Date(2000+year, time.Month(month-'A'+1), day, int(hour-'A'), minute, 0, 0, time.UTC), nil
}

func timestampNow() string {
	s, err := Timestamp(time.Now())
	if err != nil {
		return "00A0A0"
	}
	return s
}

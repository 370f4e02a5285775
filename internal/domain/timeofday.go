package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var reTimeOfDay = regexp.MustCompile(`^\d{2}:\d{2}$`)

// ParseTimeOfDay parses a strict "HH:MM" (two digits each) time of day.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	if !reTimeOfDay.MatchString(s) {
		return 0, 0, NewValidationError("time", "expected HH:MM, got "+strconv.Quote(s))
	}
	hour, _ = strconv.Atoi(s[:2])
	minute, _ = strconv.Atoi(s[3:])
	if hour > 23 {
		return 0, 0, NewValidationError("time", "hour must be 00..23")
	}
	if minute > 59 {
		return 0, 0, NewValidationError("time", "minute must be 00..59")
	}
	return hour, minute, nil
}

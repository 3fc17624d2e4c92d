package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeSpec is a wall-clock time of day with minute resolution.
type TimeSpec struct {
	Hour   int
	Minute int
}

// ParseClock parses a 24-hour "H:MM" or "HH:MM" token.
func ParseClock(s string) (TimeSpec, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return TimeSpec{}, fmt.Errorf("invalid time format (expected H:MM or HH:MM): %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeSpec{}, fmt.Errorf("invalid time value: %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeSpec{}, fmt.Errorf("invalid time value: %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeSpec{}, fmt.Errorf("time out of range: %q", s)
	}
	return TimeSpec{Hour: h, Minute: m}, nil
}

// minutes returns the offset from midnight, used for ordering.
func (t TimeSpec) minutes() int { return t.Hour*60 + t.Minute }

// Before reports whether t is strictly earlier than o.
func (t TimeSpec) Before(o TimeSpec) bool { return t.minutes() < o.minutes() }

// After reports whether t is strictly later than o.
func (t TimeSpec) After(o TimeSpec) bool { return t.minutes() > o.minutes() }

// At anchors the time of day on day's calendar date, in day's location.
func (t TimeSpec) At(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

func (t TimeSpec) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

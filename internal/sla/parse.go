package sla

import (
	"fmt"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWorkDays accepts comma separated day names or ranges, e.g. "mon-fri" or "mon,wed,sat-sun".
func ParseWorkDays(s string) ([]time.Weekday, error) {
	seen := map[time.Weekday]bool{}
	var out []time.Weekday
	add := func(d time.Weekday) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		a, err := parseWeekday(from)
		if err != nil {
			return nil, err
		}
		if !isRange {
			add(a)
			continue
		}
		b, err := parseWeekday(to)
		if err != nil {
			return nil, err
		}
		for d := a; ; d = (d + 1) % 7 {
			add(d)
			if d == b {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoWorkDays
	}
	return out, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 3 {
		if d, ok := weekdayNames[s[:3]]; ok {
			return d, nil
		}
	}
	return 0, fmt.Errorf("sla: unknown weekday %q", s)
}

// ParseClock converts "HH:MM" into minutes from midnight. "24:00" is allowed as an end of day.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("sla: invalid clock %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h*60+m > minutesPerDay {
		return 0, fmt.Errorf("sla: clock out of range %q", s)
	}
	return h*60 + m, nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(minute int) string { return fmt.Sprintf("%02d:%02d", minute/60, minute%60) }

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("sla: invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDates is ParseDate over a fixed list; it panics on bad input.
func MustParseDates(ss ...string) []Date {
	out := make([]Date, 0, len(ss))
	for _, s := range ss {
		d, err := ParseDate(s)
		if err != nil {
			panic(err)
		}
		out = append(out, d)
	}
	return out
}

package sla

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNoWorkDays    = errors.New("sla: calendar has no work days")
	ErrInvalidWindow = errors.New("sla: work day window must start before it ends")
)

const minutesPerDay = 24 * 60

// Date is a calendar date without a time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t as read in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string { return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day) }

// Before reports whether d is an earlier date than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// Window is a work-hour range in minutes from local midnight, half-open [Start, End).
type Window struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

func (w Window) valid() bool {
	return w.StartMinute >= 0 && w.StartMinute < w.EndMinute && w.EndMinute <= minutesPerDay
}

// Minutes is the length of the window.
func (w Window) Minutes() int { return w.EndMinute - w.StartMinute }

// WorkCalendar defines which time counts as business time. It is immutable once built;
// use WithHolidays to derive a copy with a different holiday set.
type WorkCalendar struct {
	// Location is the zone instants are read in. Nil keeps each instant's own zone.
	Location *time.Location

	hours    map[time.Weekday]Window
	holidays map[Date]struct{}
}

// NewWorkCalendar builds a calendar where every work day shares one window.
func NewWorkCalendar(loc *time.Location, workDays []time.Weekday, startMinute, endMinute int, holidays []Date) (*WorkCalendar, error) {
	hours := make(map[time.Weekday]Window, len(workDays))
	for _, d := range workDays {
		hours[d] = Window{StartMinute: startMinute, EndMinute: endMinute}
	}
	return NewWorkCalendarHours(loc, hours, holidays)
}

// NewWorkCalendarHours builds a calendar with a window per work day.
func NewWorkCalendarHours(loc *time.Location, hours map[time.Weekday]Window, holidays []Date) (*WorkCalendar, error) {
	if len(hours) == 0 {
		return nil, ErrNoWorkDays
	}
	cal := &WorkCalendar{Location: loc, hours: make(map[time.Weekday]Window, len(hours))}
	for d, w := range hours {
		if !w.valid() {
			return nil, fmt.Errorf("%w: %s %d-%d", ErrInvalidWindow, d, w.StartMinute, w.EndMinute)
		}
		cal.hours[d] = w
	}
	cal.holidays = dateSet(holidays)
	return cal, nil
}

func dateSet(dates []Date) map[Date]struct{} {
	set := make(map[Date]struct{}, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	return set
}

// WithHolidays returns a copy of c whose holiday set is exactly dates.
func (c *WorkCalendar) WithHolidays(dates []Date) *WorkCalendar {
	return &WorkCalendar{Location: c.Location, hours: c.hours, holidays: dateSet(dates)}
}

// WorkDays returns the configured work days, Sunday first.
func (c *WorkCalendar) WorkDays() []time.Weekday {
	out := make([]time.Weekday, 0, len(c.hours))
	for d := range c.hours {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Window returns the work window for a weekday and whether it is a work day.
func (c *WorkCalendar) Window(d time.Weekday) (Window, bool) {
	w, ok := c.hours[d]
	return w, ok
}

// Holidays returns the holiday set in ascending order.
func (c *WorkCalendar) Holidays() []Date {
	out := make([]Date, 0, len(c.holidays))
	for d := range c.holidays {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// IsHoliday reports whether the calendar date d is excluded.
func (c *WorkCalendar) IsHoliday(d Date) bool {
	_, ok := c.holidays[d]
	return ok
}

// IsBusinessDay reports whether d is a work day that is not a holiday.
func (c *WorkCalendar) IsBusinessDay(d Date) bool {
	if c.IsHoliday(d) {
		return false
	}
	_, ok := c.hours[time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()]
	return ok
}

func (c *WorkCalendar) in(t time.Time) time.Time {
	if c.Location == nil {
		return t
	}
	return t.In(c.Location)
}

package sla

import (
	"sync/atomic"
	"time"
)

// Calculator converts wall-clock intervals into business time. It is safe for
// concurrent use; SetHolidays swaps the whole calendar snapshot so readers see
// either the old or the new holiday set.
type Calculator struct {
	cal atomic.Pointer[WorkCalendar]
}

func NewCalculator(cal *WorkCalendar) *Calculator {
	c := &Calculator{}
	c.cal.Store(cal)
	return c
}

// Calendar returns the calendar snapshot currently in use.
func (c *Calculator) Calendar() *WorkCalendar { return c.cal.Load() }

// SetHolidays replaces the holiday set. Duplicates collapse by calendar date.
func (c *Calculator) SetHolidays(dates []Date) {
	for {
		old := c.cal.Load()
		if c.cal.CompareAndSwap(old, old.WithHolidays(dates)) {
			return
		}
	}
}

// BusinessDuration sums, for every calendar day touched by [start, end), the
// overlap with that day's work window. Non-work days and holidays add nothing.
// A reversed or empty interval yields zero.
func (c *Calculator) BusinessDuration(start, end time.Time) time.Duration {
	if !start.Before(end) {
		return 0
	}
	cal := c.cal.Load()
	start = cal.in(start)
	end = cal.in(end)
	loc := start.Location()

	var total time.Duration
	y, m, d := start.Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, loc); day.Before(end); day = time.Date(y, m, d+1, 0, 0, 0, 0, loc) {
		y, m, d = day.Date()
		if cal.IsHoliday(Date{Year: y, Month: m, Day: d}) {
			continue
		}
		w, ok := cal.hours[day.Weekday()]
		if !ok {
			continue
		}
		// time.Date normalises the minute offset, so windows stay on wall-clock time across DST shifts.
		lo := maxTime(start, time.Date(y, m, d, 0, w.StartMinute, 0, 0, loc))
		hi := minTime(end, time.Date(y, m, d, 0, w.EndMinute, 0, 0, loc))
		if hi.After(lo) {
			total += hi.Sub(lo)
		}
	}
	return total
}

// BusinessMinutes is BusinessDuration in (possibly fractional) minutes.
func (c *Calculator) BusinessMinutes(start, end time.Time) float64 {
	return c.BusinessDuration(start, end).Minutes()
}

// EstimateTime is the business time allotted to resolve a ticket, from the
// moment it was opened to the proposed close time.
func (c *Calculator) EstimateTime(openedAt, closeEstimate time.Time) float64 {
	return c.BusinessMinutes(openedAt, closeEstimate)
}

// LeadTime is the business time from the moment a ticket was opened to its due date.
func (c *Calculator) LeadTime(openedAt, due time.Time) float64 {
	return c.BusinessMinutes(openedAt, due)
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

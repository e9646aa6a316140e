package sla

import "time"

// Defaults used when no calendar is configured: Monday to Friday, 09:00-18:00.
const (
	DefaultDayStart = 9 * 60
	DefaultDayEnd   = 18 * 60
)

var DefaultWorkDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// DefaultHolidays2025 is the public holiday list the helpdesk shipped with for 2025.
var DefaultHolidays2025 = MustParseDates(
	"2025-01-01", "2025-02-12", "2025-04-06",
	"2025-04-13", "2025-04-14", "2025-04-15",
	"2025-05-01", "2025-05-05", "2025-05-12",
	"2025-06-03", "2025-07-10", "2025-07-28",
	"2025-08-12", "2025-10-13", "2025-10-23",
	"2025-12-05", "2025-12-10", "2025-12-31",
)

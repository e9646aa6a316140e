package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// LoadCalendar reads a calendar, its per-weekday hours and its holidays.
func LoadCalendar(ctx context.Context, db DB, id string) (*WorkCalendar, error) {
	var tz string
	if err := db.QueryRow(ctx, "select tz from calendars where id=$1", id).Scan(&tz); err != nil {
		return nil, fmt.Errorf("load calendar %s: %w", id, err)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, "select dow, start_sec, end_sec from business_hours where calendar_id=$1", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	hours := make(map[time.Weekday]Window)
	for rows.Next() {
		var dow, start, end int
		if err := rows.Scan(&dow, &start, &end); err != nil {
			return nil, err
		}
		hours[time.Weekday(dow)] = Window{StartMinute: start / 60, EndMinute: end / 60}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	hrows, err := db.Query(ctx, "select date from holidays where calendar_id=$1", id)
	if err != nil {
		return nil, err
	}
	defer hrows.Close()
	var holidays []Date
	for hrows.Next() {
		var d time.Time
		if err := hrows.Scan(&d); err != nil {
			return nil, err
		}
		// date columns arrive as UTC midnight; read the date, not the instant
		holidays = append(holidays, DateOf(d))
	}
	if err := hrows.Err(); err != nil {
		return nil, err
	}
	return NewWorkCalendarHours(loc, hours, holidays)
}

package sla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type rowFunc func(dest ...any) error

type fakeRow struct{ f rowFunc }

func (r fakeRow) Scan(dest ...any) error { return r.f(dest...) }

type fakeRows struct {
	data [][]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { return r.i < len(r.data) }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i]
	r.i++
	for i := range dest {
		switch d := dest[i].(type) {
		case *int:
			*d = row[i].(int)
		case *time.Time:
			*d = row[i].(time.Time)
		}
	}
	return nil
}

type fakeDB struct {
	tz       string
	hours    [][]any
	holidays [][]any
}

func (db fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if len(db.hours) > 0 && sql == "select dow, start_sec, end_sec from business_hours where calendar_id=$1" {
		return &fakeRows{data: db.hours}, nil
	}
	if len(db.holidays) > 0 && sql == "select date from holidays where calendar_id=$1" {
		return &fakeRows{data: db.holidays}, nil
	}
	return &fakeRows{}, nil
}
func (db fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if sql == "select tz from calendars where id=$1" {
		return fakeRow{f: func(dest ...any) error {
			*(dest[0].(*string)) = db.tz
			return nil
		}}
	}
	return fakeRow{f: func(dest ...any) error { return nil }}
}

func TestLoadCalendar(t *testing.T) {
	loc := "America/New_York"
	cases := []struct {
		name     string
		db       fakeDB
		validate func(t *testing.T, cal *WorkCalendar)
	}{
		{
			name: "normalizes holidays",
			db: fakeDB{
				tz:    loc,
				hours: [][]any{{int(time.Monday), 9 * 3600, 17 * 3600}},
				holidays: [][]any{{
					time.Date(2024, 7, 4, 15, 30, 0, 0, time.UTC), // not midnight
				}},
			},
			validate: func(t *testing.T, cal *WorkCalendar) {
				if !cal.IsHoliday(Date{Year: 2024, Month: time.July, Day: 4}) {
					t.Fatalf("expected holiday to be normalized")
				}
				if cal.IsBusinessDay(Date{Year: 2024, Month: time.July, Day: 4}) {
					t.Fatalf("holiday reported as business day")
				}
			},
		},
		{
			name: "loads varying business hours",
			db: fakeDB{
				tz: loc,
				hours: [][]any{
					{int(time.Monday), 8 * 3600, 12 * 3600},
					{int(time.Tuesday), 10 * 3600, 15 * 3600},
				},
			},
			validate: func(t *testing.T, cal *WorkCalendar) {
				m, _ := cal.Window(time.Monday)
				if m.StartMinute != 8*60 || m.EndMinute != 12*60 {
					t.Fatalf("unexpected Monday hours: %+v", m)
				}
				tu, _ := cal.Window(time.Tuesday)
				if tu.StartMinute != 10*60 || tu.EndMinute != 15*60 {
					t.Fatalf("unexpected Tuesday hours: %+v", tu)
				}
				if _, ok := cal.Window(time.Wednesday); ok {
					t.Fatalf("Wednesday should not be a work day")
				}
			},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cal, err := LoadCalendar(context.Background(), tt.db, "default")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cal.Location == nil || cal.Location.String() == "" {
				t.Fatalf("expected location to be set")
			}
			tt.validate(t, cal)
		})
	}
}

func TestLoadCalendarWithoutHours(t *testing.T) {
	db := fakeDB{tz: "UTC"}
	if _, err := LoadCalendar(context.Background(), db, "default"); !errors.Is(err, ErrNoWorkDays) {
		t.Fatalf("expected ErrNoWorkDays, got %v", err)
	}
}

func TestLoadCalendarUnknownZone(t *testing.T) {
	db := fakeDB{tz: "Mars/Olympus_Mons", hours: [][]any{{int(time.Monday), 0, 3600}}}
	if _, err := LoadCalendar(context.Background(), db, "default"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

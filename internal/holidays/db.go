package holidays

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/deskline/helpdesk-sla/internal/sla"
)

// ErrNotStored is returned by DBSource.Load when no list was ever written for
// the calendar.
var ErrNotStored = errors.New("holidays: nothing stored for calendar")

type DB interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DBSource stores holidays in the holidays table for one calendar. Once a
// list has been written the stored list is final, including an empty one.
type DBSource struct {
	DB         DB
	CalendarID string
}

func (s DBSource) Load(ctx context.Context) ([]Holiday, error) {
	var stored bool
	if err := s.DB.QueryRow(ctx, `select exists(select 1 from holiday_sets where calendar_id=$1)`, s.CalendarID).Scan(&stored); err != nil {
		return nil, fmt.Errorf("holiday set: %w", err)
	}
	if !stored {
		return nil, ErrNotStored
	}
	rows, err := s.DB.Query(ctx, `select date, coalesce(name,'') from holidays where calendar_id=$1 order by date`, s.CalendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Holiday{}
	for rows.Next() {
		var d time.Time
		var name string
		if err := rows.Scan(&d, &name); err != nil {
			return nil, err
		}
		out = append(out, Holiday{Date: sla.DateOf(d), Name: name})
	}
	return Normalize(out), rows.Err()
}

// Replace swaps the stored list for hs in one transaction.
func (s DBSource) Replace(ctx context.Context, hs []Holiday) error {
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		const mark = `insert into holiday_sets (calendar_id, updated_at) values ($1, now())
on conflict (calendar_id) do update set updated_at = excluded.updated_at`
		if _, err := tx.Exec(ctx, mark, s.CalendarID); err != nil {
			return fmt.Errorf("mark holiday set: %w", err)
		}
		if _, err := tx.Exec(ctx, `delete from holidays where calendar_id=$1`, s.CalendarID); err != nil {
			return fmt.Errorf("clear holidays: %w", err)
		}
		return s.insert(ctx, tx, hs)
	})
}

// Seed writes hs only if nothing was stored for the calendar yet. It reports
// whether hs was written; false means another writer got there first.
func (s DBSource) Seed(ctx context.Context, hs []Holiday) (bool, error) {
	errTaken := errors.New("seeded")
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `insert into holiday_sets (calendar_id) values ($1) on conflict do nothing`, s.CalendarID)
		if err != nil {
			return fmt.Errorf("mark holiday set: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errTaken
		}
		return s.insert(ctx, tx, hs)
	})
	if errors.Is(err, errTaken) {
		return false, nil
	}
	return err == nil, err
}

func (s DBSource) insert(ctx context.Context, tx pgx.Tx, hs []Holiday) error {
	hs = Normalize(hs)
	if len(hs) == 0 {
		return nil
	}
	dates := make([]time.Time, 0, len(hs))
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		dates = append(dates, time.Date(h.Date.Year, h.Date.Month, h.Date.Day, 0, 0, 0, 0, time.UTC))
		names = append(names, h.Name)
	}
	const q = `insert into holidays (calendar_id, date, name)
select $1, d, nullif(n,'') from unnest($2::date[], $3::text[]) as t(d, n)`
	if _, err := tx.Exec(ctx, q, s.CalendarID, dates, names); err != nil {
		return fmt.Errorf("insert holidays: %w", err)
	}
	return nil
}

// Seeded reads from Store. The first read of a calendar with nothing stored
// loads Seed and writes it to Store, after which Store alone decides.
type Seeded struct {
	Store DBSource
	Seed  Source
}

func (s Seeded) Load(ctx context.Context) ([]Holiday, error) {
	hs, err := s.Store.Load(ctx)
	if !errors.Is(err, ErrNotStored) {
		return hs, err
	}
	seed, err := s.Seed.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed holidays: %w", err)
	}
	written, err := s.Store.Seed(ctx, seed)
	if err != nil {
		return nil, err
	}
	if !written {
		return s.Store.Load(ctx)
	}
	return Normalize(seed), nil
}

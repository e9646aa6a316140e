package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("ticket not found")

type DB interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Row is the SLA-relevant slice of a ticket.
type Row struct {
	ID            string     `json:"id"`
	Priority      int        `json:"priority"`
	StatusID      int        `json:"status_id"`
	CloseEstimate *time.Time `json:"close_estimate,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	EstimateTime  *int       `json:"estimate_time,omitempty"`
	LeadTime      *int       `json:"lead_time,omitempty"`
}

const rowCols = `id::text, priority, status_id, close_estimate, due_date, estimate_time, lead_time`

func scanRow(r pgx.Row) (Row, error) {
	var t Row
	err := r.Scan(&t.ID, &t.Priority, &t.StatusID, &t.CloseEstimate, &t.DueDate, &t.EstimateTime, &t.LeadTime)
	return t, err
}

// Get loads one ticket.
func Get(ctx context.Context, db DB, id string) (Row, error) {
	t, err := scanRow(db.QueryRow(ctx, `select `+rowCols+` from tickets where id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	return t, err
}

// ListActive returns tickets whose SLA clock is running.
func ListActive(ctx context.Context, db DB) ([]Row, error) {
	rows, err := db.Query(ctx, `select `+rowCols+` from tickets where status_id = any($1) order by id`, []int{StatusOpen, StatusInProgress})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		t, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// History returns the status transitions of a ticket, oldest first.
func History(ctx context.Context, db DB, id string) ([]StatusChange, error) {
	rows, err := db.Query(ctx, `select status_id, create_date from ticket_status_history where ticket_id=$1 order by create_date`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusChange
	for rows.Next() {
		var h StatusChange
		if err := rows.Scan(&h.StatusID, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AddStatus appends a status transition.
func AddStatus(ctx context.Context, db DB, id string, h StatusChange) error {
	_, err := db.Exec(ctx, `insert into ticket_status_history (ticket_id, status_id, create_date) values ($1, $2, $3)`, id, h.StatusID, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("add status: %w", err)
	}
	return nil
}

// Save writes the support fields and stored figures of t.
func Save(ctx context.Context, db DB, t Row) error {
	const q = `update tickets set status_id=$2, close_estimate=$3, due_date=$4, estimate_time=$5, lead_time=$6, updated_at=now() where id=$1`
	tag, err := db.Exec(ctx, q, t.ID, t.StatusID, t.CloseEstimate, t.DueDate, t.EstimateTime, t.LeadTime)
	if err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveTimes writes only the stored figures.
func SaveTimes(ctx context.Context, db DB, id string, s Stored) error {
	_, err := db.Exec(ctx, `update tickets set estimate_time=$2, lead_time=$3, updated_at=now() where id=$1`, id, s.EstimateTime, s.LeadTime)
	if err != nil {
		return fmt.Errorf("save times: %w", err)
	}
	return nil
}

// Recalculate recomputes and stores the figures for t. It returns the fresh
// figures and whether the stored ones changed.
func Recalculate(ctx context.Context, db DB, calc Calculator, t Row) (Times, bool, error) {
	history, err := History(ctx, db, t.ID)
	if err != nil {
		return Times{}, false, err
	}
	times := Compute(calc, history, t.CloseEstimate, t.DueDate)
	s := times.Stored()
	if equalInt(s.EstimateTime, t.EstimateTime) && equalInt(s.LeadTime, t.LeadTime) {
		return times, false, nil
	}
	if err := s.Validate(); err != nil {
		return times, false, err
	}
	return times, true, SaveTimes(ctx, db, t.ID, s)
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

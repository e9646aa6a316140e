package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/deskline/helpdesk-sla/internal/events"
	"github.com/deskline/helpdesk-sla/internal/holidays"
	"github.com/deskline/helpdesk-sla/internal/jobs"
	"github.com/deskline/helpdesk-sla/internal/sla"
	"github.com/deskline/helpdesk-sla/internal/ticket"
)

// breachTTL bounds how long a breach marker suppresses repeat notifications.
const breachTTL = 30 * 24 * time.Hour

func breachKey(ticketID string) string { return "sla:breached:" + ticketID }

// Worker drains the job queue and watches due dates.
type Worker struct {
	DB       ticket.DB
	RDB      *redis.Client
	Calc     *sla.Calculator
	Holidays holidays.Source
	Now      func() time.Time
}

// ProcessQueueJob waits up to timeout for one job and runs it. No job is not
// an error.
func (w *Worker) ProcessQueueJob(ctx context.Context, timeout time.Duration) error {
	job, err := jobs.Next(ctx, w.RDB, timeout)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("next job: %w", err)
	}
	logger := log.With().Str("job", job.ID).Str("type", job.Type).Logger()
	switch job.Type {
	case jobs.RecalculateSLA:
		var data jobs.RecalculateData
		if len(job.Data) > 0 {
			if err := json.Unmarshal(job.Data, &data); err != nil {
				return fmt.Errorf("unmarshal %s job: %w", job.Type, err)
			}
		}
		n, err := w.Recalculate(logger.WithContext(ctx), data)
		if err != nil {
			return err
		}
		logger.Info().Int("updated", n).Str("reason", data.Reason).Msg("sla recalculated")
	default:
		logger.Warn().Msg("unknown job type")
	}
	return nil
}

// Recalculate reloads the holiday set and recomputes stored figures for one
// ticket, or for every active ticket when data names none. It returns the
// number of tickets whose figures changed.
func (w *Worker) Recalculate(ctx context.Context, data jobs.RecalculateData) (int, error) {
	if w.Holidays != nil {
		hs, err := w.Holidays.Load(ctx)
		if err != nil {
			return 0, fmt.Errorf("reload holidays: %w", err)
		}
		w.Calc.SetHolidays(holidays.Dates(hs))
	}
	var rows []ticket.Row
	if data.TicketID != "" {
		t, err := ticket.Get(ctx, w.DB, data.TicketID)
		if err != nil {
			return 0, err
		}
		rows = []ticket.Row{t}
	} else {
		var err error
		if rows, err = ticket.ListActive(ctx, w.DB); err != nil {
			return 0, err
		}
	}
	updated := 0
	for _, t := range rows {
		times, changed, err := ticket.Recalculate(ctx, w.DB, w.Calc, t)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("ticket", t.ID).Msg("recalculate ticket")
			continue
		}
		if !changed {
			continue
		}
		updated++
		stored := times.Stored()
		events.Record(ctx, w.DB, t.ID, events.SLAUpdated, stored)
		events.Publish(ctx, w.RDB, events.Event{Type: events.SLAUpdated, TicketID: t.ID, Data: stored})
	}
	return updated, nil
}

type breach struct {
	DueDate     time.Time `json:"due_date"`
	OverdueMins float64   `json:"overdue_business_minutes"`
}

// Sweep flags active tickets whose due date has passed. Each ticket is
// reported once. It returns the number of new breaches.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	rows, err := ticket.ListActive(ctx, w.DB)
	if err != nil {
		return 0, err
	}
	now := w.Now()
	n := 0
	for _, t := range rows {
		if t.DueDate == nil || now.Before(*t.DueDate) {
			continue
		}
		fresh, err := w.RDB.SetNX(ctx, breachKey(t.ID), now.Unix(), breachTTL).Result()
		if err != nil {
			return n, fmt.Errorf("mark breach: %w", err)
		}
		if !fresh {
			continue
		}
		n++
		b := breach{DueDate: *t.DueDate, OverdueMins: w.Calc.BusinessMinutes(*t.DueDate, now)}
		log.Warn().Str("ticket", t.ID).Time("due", b.DueDate).Float64("overdue_mins", b.OverdueMins).Msg("resolution SLA breached")
		events.Record(ctx, w.DB, t.ID, events.SLABreached, b)
		events.Publish(ctx, w.RDB, events.Event{Type: events.SLABreached, TicketID: t.ID, Data: b})
	}
	return n, nil
}

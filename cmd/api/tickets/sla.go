package tickets

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	app "github.com/deskline/helpdesk-sla/cmd/api/app"
	"github.com/deskline/helpdesk-sla/cmd/api/metrics"
	"github.com/deskline/helpdesk-sla/internal/events"
	"github.com/deskline/helpdesk-sla/internal/sla"
	"github.com/deskline/helpdesk-sla/internal/ticket"
)

var now = time.Now

// SLA is the computed SLA view of a ticket.
type SLA struct {
	ID            string     `json:"id"`
	Priority      int        `json:"priority"`
	StatusID      int        `json:"status_id"`
	OpenDate      *time.Time `json:"open_date,omitempty"`
	CloseEstimate *time.Time `json:"close_estimate,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ticket.Times
	Stored           ticket.Stored `json:"stored"`
	Policy           *sla.Policy   `json:"policy,omitempty"`
	WithinTarget     *bool         `json:"within_target,omitempty"`
	RemainingMinutes *float64      `json:"remaining_minutes,omitempty"`
}

func buildSLA(c *gin.Context, a *app.App, t ticket.Row, history []ticket.StatusChange) SLA {
	out := SLA{ID: t.ID, Priority: t.Priority, StatusID: t.StatusID, CloseEstimate: t.CloseEstimate, DueDate: t.DueDate}
	if opened, ok := ticket.OpenedAt(history); ok {
		out.OpenDate = &opened
		out.Times = ticket.ComputeFrom(a.Calc, opened, t.CloseEstimate, t.DueDate)
	}
	out.Stored = out.Times.Stored()
	if ticket.Active(t.StatusID) && t.DueDate != nil {
		r := a.Calc.BusinessMinutes(now(), *t.DueDate)
		out.RemainingMinutes = &r
	}
	policies, err := sla.ListPolicies(c.Request.Context(), a.DB)
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("load sla policies")
		return out
	}
	if p, ok := sla.ForPriority(policies, t.Priority); ok {
		out.Policy = &p
		if out.Times.LeadTime != nil {
			within := p.WithinResolution(*out.Times.LeadTime)
			out.WithinTarget = &within
		}
	}
	return out
}

// GetSLA returns the ticket's estimate and lead time computed from its
// status history and targets.
func GetSLA(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			app.AbortError(c, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
			return
		}
		ctx := c.Request.Context()
		t, err := ticket.Get(ctx, a.DB, c.Param("id"))
		if errors.Is(err, ticket.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "not_found", "ticket not found", nil)
			return
		}
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "ticket_query", err.Error(), nil)
			return
		}
		history, err := ticket.History(ctx, a.DB, t.ID)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "history_query", err.Error(), nil)
			return
		}
		out := buildSLA(c, a, t, history)
		metrics.ObserveTimes(out.Times)
		c.JSON(http.StatusOK, out)
	}
}

type supportReq struct {
	StatusID      *int       `json:"status_id" binding:"omitempty,min=1,max=6"`
	CloseEstimate *time.Time `json:"close_estimate"`
	DueDate       *time.Time `json:"due_date"`
}

// UpdateSupport saves the support form: status, close estimate and due date.
// Estimate and lead time are recomputed and stored with the row.
func UpdateSupport(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in supportReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_support", err.Error(), app.BindErrors(err))
			return
		}
		if a.DB == nil {
			app.AbortError(c, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
			return
		}
		ctx := c.Request.Context()
		t, err := ticket.Get(ctx, a.DB, c.Param("id"))
		if errors.Is(err, ticket.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "not_found", "ticket not found", nil)
			return
		}
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "ticket_query", err.Error(), nil)
			return
		}
		history, err := ticket.History(ctx, a.DB, t.ID)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "history_query", err.Error(), nil)
			return
		}

		var change *ticket.StatusChange
		if in.StatusID != nil && *in.StatusID != t.StatusID {
			change = &ticket.StatusChange{StatusID: *in.StatusID, CreatedAt: now()}
			history = append(history, *change)
			t.StatusID = *in.StatusID
		}
		if in.CloseEstimate != nil {
			t.CloseEstimate = in.CloseEstimate
		}
		if in.DueDate != nil {
			t.DueDate = in.DueDate
		}

		times := ticket.Compute(a.Calc, history, t.CloseEstimate, t.DueDate)
		stored := times.Stored()
		if err := stored.Validate(); err != nil {
			var ve validator.ValidationErrors
			if errors.As(err, &ve) {
				app.AbortError(c, http.StatusUnprocessableEntity, "sla_out_of_bounds", "computed times exceed the allowed range", app.BindErrors(err))
				return
			}
			app.AbortError(c, http.StatusInternalServerError, "validate", err.Error(), nil)
			return
		}
		t.EstimateTime, t.LeadTime = stored.EstimateTime, stored.LeadTime

		err = pgx.BeginFunc(ctx, a.DB, func(tx pgx.Tx) error {
			if change != nil {
				if err := ticket.AddStatus(ctx, tx, t.ID, *change); err != nil {
					return fmt.Errorf("status history: %w", err)
				}
			}
			return ticket.Save(ctx, tx, t)
		})
		if errors.Is(err, ticket.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "not_found", "ticket not found", nil)
			return
		}
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "ticket_update", err.Error(), nil)
			return
		}
		metrics.ObserveTimes(times)

		out := buildSLA(c, a, t, history)
		events.Record(ctx, a.DB, t.ID, events.SLAUpdated, out.Stored)
		events.Publish(ctx, a.Q, events.Event{Type: events.SLAUpdated, TicketID: t.ID, Data: out.Stored})
		log.Ctx(ctx).Info().Str("ticket", t.ID).Msg("support information updated")
		c.JSON(http.StatusOK, out)
	}
}

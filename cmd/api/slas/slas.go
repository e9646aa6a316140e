package slas

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apppkg "github.com/deskline/helpdesk-sla/cmd/api/app"
	"github.com/deskline/helpdesk-sla/cmd/api/metrics"
	"github.com/deskline/helpdesk-sla/internal/events"
	"github.com/deskline/helpdesk-sla/internal/holidays"
	"github.com/deskline/helpdesk-sla/internal/jobs"
	slapkg "github.com/deskline/helpdesk-sla/internal/sla"
	"github.com/deskline/helpdesk-sla/internal/ticket"
)

// List returns SLA policies.
func List(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, []slapkg.Policy{})
			return
		}
		slas, err := slapkg.ListPolicies(c.Request.Context(), a.DB)
		if err != nil {
			apppkg.AbortError(c, http.StatusInternalServerError, "policy_query", err.Error(), nil)
			return
		}
		c.JSON(http.StatusOK, slas)
	}
}

type calendarResp struct {
	ID       string                   `json:"id"`
	Timezone string                   `json:"timezone,omitempty"`
	WorkDays []string                 `json:"work_days"`
	Hours    map[string]slapkg.Window `json:"hours"`
	DayStart string                   `json:"day_start,omitempty"`
	DayEnd   string                   `json:"day_end,omitempty"`
	Holidays []holidays.Holiday       `json:"holidays"`
}

// Calendar describes the work calendar currently used for calculations.
func Calendar(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		cal := a.Calc.Calendar()
		out := calendarResp{ID: a.Cfg.CalendarID, Hours: map[string]slapkg.Window{}, WorkDays: []string{}}
		if cal.Location != nil {
			out.Timezone = cal.Location.String()
		}
		for _, d := range cal.WorkDays() {
			w, _ := cal.Window(d)
			out.WorkDays = append(out.WorkDays, d.String())
			out.Hours[d.String()] = w
			if out.DayStart == "" {
				out.DayStart, out.DayEnd = slapkg.FormatClock(w.StartMinute), slapkg.FormatClock(w.EndMinute)
			}
		}
		names := map[slapkg.Date]string{}
		if a.DB != nil {
			stored, err := holidays.DBSource{DB: a.DB, CalendarID: a.Cfg.CalendarID}.Load(c.Request.Context())
			if err != nil && !errors.Is(err, holidays.ErrNotStored) {
				log.Ctx(c.Request.Context()).Warn().Err(err).Msg("load holiday names")
			}
			for _, h := range stored {
				names[h.Date] = h.Name
			}
		}
		out.Holidays = []holidays.Holiday{}
		for _, d := range cal.Holidays() {
			out.Holidays = append(out.Holidays, holidays.Holiday{Date: d, Name: names[d]})
		}
		c.JSON(http.StatusOK, out)
	}
}

type replaceHolidaysReq struct {
	Holidays []holidays.Holiday `json:"holidays" binding:"required"`
}

// ReplaceHolidays swaps the holiday set wholesale. The stored copy, the
// cache and the in-process calculator are all updated, then a
// recalculation of active tickets is queued.
func ReplaceHolidays(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in replaceHolidaysReq
		if err := c.ShouldBindJSON(&in); err != nil {
			apppkg.AbortError(c, http.StatusBadRequest, "invalid_holidays", err.Error(), apppkg.BindErrors(err))
			return
		}
		ctx := c.Request.Context()
		hs := holidays.Normalize(in.Holidays)
		if a.DB != nil {
			if err := (holidays.DBSource{DB: a.DB, CalendarID: a.Cfg.CalendarID}).Replace(ctx, hs); err != nil {
				apppkg.AbortError(c, http.StatusInternalServerError, "holiday_store", err.Error(), nil)
				return
			}
		}
		cache := holidays.Cached{RDB: a.Q, Key: holidays.CacheKey(a.Cfg.CalendarID)}
		if err := cache.Invalidate(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("invalidate holiday cache")
		}
		a.Calc.SetHolidays(holidays.Dates(hs))
		metrics.HolidayReplacementsTotal.Inc()
		metrics.HolidaysConfigured.Set(float64(len(hs)))

		events.Publish(ctx, a.Q, events.Event{Type: events.CalendarChanged, Data: gin.H{"holidays": len(hs)}})
		resp := gin.H{"holidays": hs}
		if a.Q != nil {
			id, err := jobs.Enqueue(ctx, a.Q, jobs.RecalculateSLA, jobs.RecalculateData{Reason: "holidays_replaced"})
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Msg("enqueue recalculation")
			} else {
				resp["job_id"] = id
			}
		}
		log.Ctx(ctx).Info().Int("holidays", len(hs)).Msg("holidays replaced")
		c.JSON(http.StatusOK, resp)
	}
}

type minutesReq struct {
	Start *time.Time `json:"start" binding:"required"`
	End   *time.Time `json:"end" binding:"required"`
}

// BusinessMinutes returns the business minutes between two instants. A
// reversed interval yields zero.
func BusinessMinutes(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in minutesReq
		if err := c.ShouldBindJSON(&in); err != nil {
			apppkg.AbortError(c, http.StatusBadRequest, "invalid_interval", "start and end must be RFC 3339 timestamps", apppkg.BindErrors(err))
			return
		}
		m := a.Calc.BusinessMinutes(*in.Start, *in.End)
		metrics.Observe("business_minutes", m)
		c.JSON(http.StatusOK, gin.H{"minutes": m})
	}
}

type timesReq struct {
	OpenDate      *time.Time `json:"open_date" binding:"required"`
	CloseEstimate *time.Time `json:"close_estimate"`
	DueDate       *time.Time `json:"due_date"`
}

type TimesResp struct {
	ticket.Times
	Stored ticket.Stored `json:"stored"`
}

// Times computes estimate and lead time for an open instant and the
// targets entered on the support form.
func Times(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in timesReq
		if err := c.ShouldBindJSON(&in); err != nil {
			apppkg.AbortError(c, http.StatusBadRequest, "invalid_times", "open_date is required; dates must be RFC 3339 timestamps", apppkg.BindErrors(err))
			return
		}
		t := ticket.ComputeFrom(a.Calc, *in.OpenDate, in.CloseEstimate, in.DueDate)
		metrics.ObserveTimes(t)
		c.JSON(http.StatusOK, TimesResp{Times: t, Stored: t.Stored()})
	}
}

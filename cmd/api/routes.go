package main

import (
	"github.com/gin-gonic/gin"

	app "github.com/deskline/helpdesk-sla/cmd/api/app"
	authpkg "github.com/deskline/helpdesk-sla/cmd/api/auth"
	"github.com/deskline/helpdesk-sla/cmd/api/events"
	"github.com/deskline/helpdesk-sla/cmd/api/handlers"
	"github.com/deskline/helpdesk-sla/cmd/api/metrics"
	"github.com/deskline/helpdesk-sla/cmd/api/slas"
	"github.com/deskline/helpdesk-sla/cmd/api/tickets"
	"github.com/deskline/helpdesk-sla/cmd/api/ws"
	"github.com/deskline/helpdesk-sla/internal/ratelimit"
)

func routes(a *app.App, hub *ws.Hub) {
	a.R.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	a.R.GET("/livez", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	a.R.GET("/metrics", metrics.Handler())

	auth := a.R.Group("/")
	auth.Use(authpkg.Middleware(a))
	auth.GET("/me", authpkg.Me)
	auth.GET("/features", handlers.Features(a))
	if hub != nil {
		auth.GET("/ws", ws.Serve(hub))
	}

	// Calculation endpoints share a per-user budget across replicas.
	calc := ratelimit.New(a.Q, a.Cfg.CalcRateLimit, a.Cfg.CalcRateWindow, "calc").Middleware(userKey)

	auth.GET("/slas", slas.List(a))
	auth.GET("/sla/calendar", slas.Calendar(a))
	auth.PUT("/sla/calendar/holidays", authpkg.RequireRole("admin"), slas.ReplaceHolidays(a))
	auth.POST("/sla/business-minutes", calc, slas.BusinessMinutes(a))
	auth.POST("/sla/times", calc, slas.Times(a))

	auth.GET("/tickets/:id/sla", tickets.GetSLA(a))
	auth.GET("/tickets/:id/events", events.Stream(a))
	auth.PATCH("/tickets/:id/support", authpkg.RequireRole("agent"), tickets.UpdateSupport(a))
}

func userKey(c *gin.Context) string {
	if u, ok := authpkg.CurrentUser(c); ok && u.ID != "" {
		return "user:" + u.ID
	}
	return "ip:" + c.ClientIP()
}

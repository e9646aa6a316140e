package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apppkg "github.com/deskline/helpdesk-sla/cmd/api/app"
)

// Features reports which optional capabilities are active so the UI can
// toggle live updates and the holiday editor.
func Features(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sources := []string{}
		if a.DB != nil {
			sources = append(sources, "postgres")
		}
		if a.Cfg.HolidaysFile != "" {
			sources = append(sources, "file")
		}
		if a.Cfg.MinIOEndpoint != "" && a.Cfg.HolidaysObjectKey != "" {
			sources = append(sources, "object")
		}
		sources = append(sources, "built_in")
		c.JSON(http.StatusOK, gin.H{
			"live_updates":      a.Q != nil,
			"holiday_editing":   a.DB != nil,
			"holiday_sources":   sources,
			"calc_rate_limit":   a.Q != nil && a.Cfg.CalcRateLimit > 0,
			"per_weekday_hours": true,
		})
	}
}

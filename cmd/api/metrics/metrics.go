package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deskline/helpdesk-sla/internal/ticket"
)

var (
	// CalculationsTotal counts business-time calculations by kind
	// (business_minutes, estimate_time, lead_time).
	CalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_calculations_total",
		Help: "Business-time calculations served",
	}, []string{"kind"})
	CalculatedMinutes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sla_calculated_business_minutes",
		Help:    "Distribution of calculated business minutes",
		Buckets: []float64{0, 60, 240, 540, 1080, 2700, 5400, 10800},
	}, []string{"kind"})
	HolidaysConfigured = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sla_holidays_configured",
		Help: "Holidays in the active work calendar",
	})
	HolidayReplacementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sla_holiday_replacements_total",
		Help: "Times the holiday set was replaced",
	})
)

func init() {
	prometheus.MustRegister(CalculationsTotal, CalculatedMinutes, HolidaysConfigured, HolidayReplacementsTotal)
}

// Observe records one calculation.
func Observe(kind string, minutes float64) {
	CalculationsTotal.WithLabelValues(kind).Inc()
	CalculatedMinutes.WithLabelValues(kind).Observe(minutes)
}

// ObserveTimes records the figures present in t.
func ObserveTimes(t ticket.Times) {
	if t.EstimateTime != nil {
		Observe("estimate_time", *t.EstimateTime)
	}
	if t.LeadTime != nil {
		Observe("lead_time", *t.LeadTime)
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc { return gin.WrapH(promhttp.Handler()) }

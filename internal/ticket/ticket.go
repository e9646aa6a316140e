// Package ticket derives a ticket's SLA figures from its status history and
// the target dates an agent enters on the support form.
package ticket

import (
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Status IDs as stored in ticket_status.
const (
	StatusNew        = 1
	StatusOpen       = 2
	StatusInProgress = 3
	StatusResolved   = 4
	StatusCompleted  = 5
	StatusCancelled  = 6
)

// Active reports whether SLA clocks still run for a status.
func Active(status int) bool { return status == StatusOpen || status == StatusInProgress }

// StatusChange is one row of a ticket's status history.
type StatusChange struct {
	StatusID  int       `json:"status_id"`
	CreatedAt time.Time `json:"create_date"`
}

// OpenedAt returns when the ticket first entered the open status.
func OpenedAt(history []StatusChange) (time.Time, bool) {
	var at time.Time
	found := false
	for _, h := range history {
		if h.StatusID != StatusOpen || h.CreatedAt.IsZero() {
			continue
		}
		if !found || h.CreatedAt.Before(at) {
			at, found = h.CreatedAt, true
		}
	}
	return at, found
}

// Calculator is the subset of sla.Calculator used here.
type Calculator interface {
	EstimateTime(openedAt, closeEstimate time.Time) float64
	LeadTime(openedAt, due time.Time) float64
}

// Times holds business-minute figures. A nil field could not be computed.
type Times struct {
	EstimateTime *float64 `json:"estimate_time,omitempty"`
	LeadTime     *float64 `json:"lead_time,omitempty"`
}

// Compute derives estimate and lead time. Without an open transition nothing
// is computable; a missing target leaves its figure nil.
func Compute(calc Calculator, history []StatusChange, closeEstimate, due *time.Time) Times {
	opened, ok := OpenedAt(history)
	if !ok {
		return Times{}
	}
	return ComputeFrom(calc, opened, closeEstimate, due)
}

// ComputeFrom is Compute with a known open instant.
func ComputeFrom(calc Calculator, opened time.Time, closeEstimate, due *time.Time) Times {
	var t Times
	if closeEstimate != nil && !closeEstimate.IsZero() {
		v := calc.EstimateTime(opened, *closeEstimate)
		t.EstimateTime = &v
	}
	if due != nil && !due.IsZero() {
		v := calc.LeadTime(opened, *due)
		t.LeadTime = &v
	}
	return t
}

// Stored is what gets written to the ticket row: whole minutes, and only
// figures greater than zero.
type Stored struct {
	EstimateTime *int `json:"estimate_time,omitempty" validate:"omitempty,min=0,max=1000"`
	LeadTime     *int `json:"lead_time,omitempty" validate:"omitempty,min=0,max=10000"`
}

// Stored rounds t for persistence.
func (t Times) Stored() Stored {
	return Stored{EstimateTime: roundPositive(t.EstimateTime), LeadTime: roundPositive(t.LeadTime)}
}

func roundPositive(v *float64) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	n := int(math.Round(*v))
	if n <= 0 {
		return nil
	}
	return &n
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the stored figures against the support form bounds.
func (s Stored) Validate() error { return validate.Struct(s) }

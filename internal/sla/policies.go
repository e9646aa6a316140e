package sla

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type policyDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Policy is the resolution commitment attached to a ticket priority.
type Policy struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Priority             int    `json:"priority"`
	ResponseTargetMins   int    `json:"response_target_mins"`
	ResolutionTargetMins int    `json:"resolution_target_mins"`
}

// ListPolicies returns all SLA policies ordered by priority.
func ListPolicies(ctx context.Context, db policyDB) ([]Policy, error) {
	rows, err := db.Query(ctx, `select id::text, name, priority, response_target_mins, resolution_target_mins from sla_policies order by priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Policy{}
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Priority, &p.ResponseTargetMins, &p.ResolutionTargetMins); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ForPriority picks the policy for a ticket priority.
func ForPriority(policies []Policy, priority int) (Policy, bool) {
	for _, p := range policies {
		if p.Priority == priority {
			return p, true
		}
	}
	return Policy{}, false
}

// WithinResolution reports whether a business-minute figure fits the policy's
// resolution target. A zero target means no commitment.
func (p Policy) WithinResolution(minutes float64) bool {
	return p.ResolutionTargetMins <= 0 || minutes <= float64(p.ResolutionTargetMins)
}

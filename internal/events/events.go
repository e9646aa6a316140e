// Package events carries SLA notifications between the API, the worker and
// connected websocket clients.
package events

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Channel is the Redis pub/sub channel events travel on.
const Channel = "sla_events"

// Event types.
const (
	SLAUpdated      = "sla_updated"
	CalendarChanged = "calendar_changed"
	SLABreached     = "sla_breached"
)

// Event is the message delivered to subscribers. TicketID is empty for
// calendar-wide events.
type Event struct {
	Type     string      `json:"type"`
	TicketID string      `json:"ticket_id,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// Publish sends ev on Channel. Best effort; rdb may be nil.
func Publish(ctx context.Context, rdb *redis.Client, ev Event) {
	if rdb == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := rdb.Publish(ctx, Channel, b).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("type", ev.Type).Msg("publish event")
	}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Record stores a ticket event in ticket_events. Best effort; errors are logged.
func Record(ctx context.Context, db execer, ticketID, typ string, data interface{}) {
	if db == nil {
		return
	}
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	const q = `insert into ticket_events (ticket_id, event_type, payload) values ($1, $2, $3)`
	if _, err := db.Exec(ctx, q, ticketID, typ, b); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("ticket", ticketID).Msg("record ticket event")
	}
}

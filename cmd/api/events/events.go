package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apppkg "github.com/deskline/helpdesk-sla/cmd/api/app"
)

// Envelope is the event payload sent to clients.
type Envelope struct {
	Type     string          `json:"type"`
	TicketID string          `json:"ticket_id"`
	Data     json.RawMessage `json:"data,omitempty"`
}

var (
	pollInterval      = time.Second
	heartbeatInterval = 25 * time.Second
)

// Stream replays and follows a ticket's SLA events (sla_updated,
// sla_breached) from ticket_events using Server-Sent Events. Clients resume
// with Last-Event-ID.
func Stream(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.Status(http.StatusOK)
			return
		}
		ticketID := c.Param("id")
		var last int64
		if id := c.GetHeader("Last-Event-ID"); id != "" {
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				apppkg.AbortError(c, http.StatusBadRequest, "invalid_last_event_id", "Last-Event-ID must be numeric", nil)
				return
			}
			last = n
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		ctx := c.Request.Context()
		// The stream outlives the server's WriteTimeout.
		if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
			log.Ctx(ctx).Debug().Err(err).Msg("clear write deadline")
		}
		c.Status(http.StatusOK)
		flusher.Flush()

		send := func(after int64) int64 {
			const q = `select id, event_type, payload from ticket_events where ticket_id=$1 and id > $2 order by id asc`
			rows, err := a.DB.Query(ctx, q, ticketID, after)
			if err != nil {
				return after
			}
			defer rows.Close()
			for rows.Next() {
				var id int64
				var typ string
				var payload []byte
				if err := rows.Scan(&id, &typ, &payload); err != nil {
					continue
				}
				b, _ := json.Marshal(Envelope{Type: typ, TicketID: ticketID, Data: payload})
				fmt.Fprintf(c.Writer, "id: %d\nevent: %s\ndata: %s\n\n", id, typ, b)
				flusher.Flush()
				after = id
			}
			return after
		}

		last = send(last)
		poll := time.NewTicker(pollInterval)
		heart := time.NewTicker(heartbeatInterval)
		defer poll.Stop()
		defer heart.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				last = send(last)
			case <-heart.C:
				fmt.Fprint(c.Writer, ": heartbeat\n\n")
				flusher.Flush()
			}
		}
	}
}

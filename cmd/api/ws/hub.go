package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/deskline/helpdesk-sla/internal/events"
)

var wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "ws_clients",
	Help: "Number of connected WebSocket clients",
})

func init() { prometheus.MustRegister(wsClients) }

// Hub fans SLA events out to websocket clients. Events published by other
// processes arrive through Redis.
type Hub struct {
	rdb        *redis.Client
	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool
	broadcast  chan events.Event
	count      chan chan int
	done       chan struct{}
}

// NewHub constructs a Hub. rdb may be nil to disable cross-process events.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		rdb:        rdb,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan events.Event, 16),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run is the hub loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	var ch <-chan *redis.Message
	if h.rdb != nil {
		sub := h.rdb.Subscribe(ctx, events.Channel)
		ch = sub.Channel()
		go func() {
			<-ctx.Done()
			_ = sub.Close()
		}()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			if msg != nil {
				var ev events.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err == nil {
					h.fanout(ev)
				}
			}
		case c := <-h.register:
			h.clients[c] = true
			wsClients.Inc()
		case c := <-h.unregister:
			h.drop(c)
		case ev := <-h.broadcast:
			h.fanout(ev)
		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

func (h *Hub) fanout(ev events.Event) {
	for c := range h.clients {
		if !c.wants(ev) {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		wsClients.Dec()
	}
}

// Broadcast enqueues a local event for all interested clients.
func (h *Hub) Broadcast(ev events.Event) { h.broadcast <- ev }

// Clients returns the number of connected clients, or -1 if the hub loop
// does not answer before ctx is done.
func (h *Hub) Clients(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-ctx.Done():
		return -1
	}
}

// Register adds a client to the hub. It is a no-op once the hub has stopped.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client. It is a no-op once the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Client is one websocket connection, optionally watching a single ticket.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan events.Event
	ticket string
}

// NewClient constructs a client. An empty ticket receives every event.
func NewClient(h *Hub, conn *websocket.Conn, ticket string) *Client {
	return &Client{hub: h, conn: conn, send: make(chan events.Event, 8), ticket: ticket}
}

func (c *Client) wants(ev events.Event) bool {
	return c.ticket == "" || ev.TicketID == "" || ev.TicketID == c.ticket
}

// ReadPump reads messages from the WebSocket to detect disconnects.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump writes events to the WebSocket connection.
func (c *Client) WritePump(ctx context.Context) {
	defer func() { _ = c.conn.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// Upgrader with permissive origin checks; the route sits behind auth middleware.
var Upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Serve upgrades the request and attaches the connection to h. The optional
// ticket query parameter narrows delivery to one ticket.
func Serve(h *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade")
			return
		}
		client := NewClient(h, conn, c.Query("ticket"))
		h.Register(client)
		go client.WritePump(context.WithoutCancel(c.Request.Context()))
		client.ReadPump()
	}
}

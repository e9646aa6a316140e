package tickets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	app "github.com/deskline/helpdesk-sla/cmd/api/app"
	authpkg "github.com/deskline/helpdesk-sla/cmd/api/auth"
	"github.com/deskline/helpdesk-sla/internal/events"
	"github.com/deskline/helpdesk-sla/internal/sla"
	"github.com/deskline/helpdesk-sla/internal/ticket"
)

var ict = time.FixedZone("ICT", 7*3600)

type fakeDB struct {
	ticket   *ticket.Row
	history  []ticket.StatusChange
	policies []sla.Policy
	execs    []string
	failOn   string
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	r := &fakeRows{}
	switch {
	case strings.Contains(sql, "ticket_status_history"):
		for _, h := range db.history {
			r.rows = append(r.rows, []any{h.StatusID, h.CreatedAt})
		}
	case strings.Contains(sql, "sla_policies"):
		for _, p := range db.policies {
			r.rows = append(r.rows, []any{p.ID, p.Name, p.Priority, p.ResponseTargetMins, p.ResolutionTargetMins})
		}
	}
	return r, nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if db.ticket == nil || args[0] != db.ticket.ID {
		return &fakeRows{}
	}
	t := db.ticket
	return &fakeRows{rows: [][]any{{t.ID, t.Priority, t.StatusID, t.CloseEstimate, t.DueDate, t.EstimateTime, t.LeadTime}}, i: 1}
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, sql)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (db *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) { return &fakeTx{db: db}, nil }

// fakeTx buffers statements and hands them to the fakeDB only on commit.
type fakeTx struct {
	pgx.Tx
	db      *fakeDB
	pending []string
	closed  bool
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx.db.failOn != "" && strings.Contains(sql, tx.db.failOn) {
		return pgconn.CommandTag{}, errors.New("connection reset")
	}
	tx.pending = append(tx.pending, sql)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	tx.db.execs = append(tx.db.execs, tx.pending...)
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	return nil
}

type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	if r.i == 0 || r.i > len(r.rows) {
		return pgx.ErrNoRows
	}
	row := r.rows[r.i-1]
	for i := range dest {
		switch p := dest[i].(type) {
		case *string:
			*p = row[i].(string)
		case *int:
			*p = row[i].(int)
		case *time.Time:
			*p = row[i].(time.Time)
		case **time.Time:
			*p = row[i].(*time.Time)
		case **int:
			*p = row[i].(*int)
		}
	}
	return nil
}

func setup(t *testing.T, db app.DB, rdb *redis.Client) *app.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	now = func() time.Time { return time.Date(2024, 7, 1, 10, 0, 0, 0, ict) }
	t.Cleanup(func() { now = time.Now })
	cal, err := sla.NewWorkCalendar(ict, sla.DefaultWorkDays, sla.DefaultDayStart, sla.DefaultDayEnd, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := app.NewApp(app.Config{Env: "test", TestBypassAuth: true}, db, nil, rdb, sla.NewCalculator(cal))
	g := a.R.Group("/", authpkg.Middleware(a))
	g.GET("/tickets/:id/sla", GetSLA(a))
	g.PATCH("/tickets/:id/support", authpkg.RequireRole("agent"), UpdateSupport(a))
	return a
}

func openTicket() *fakeDB {
	opened := time.Date(2024, 7, 1, 9, 0, 0, 0, ict)
	return &fakeDB{
		ticket: &ticket.Row{ID: "t1", Priority: 1, StatusID: ticket.StatusOpen},
		history: []ticket.StatusChange{
			{StatusID: ticket.StatusNew, CreatedAt: opened.Add(-time.Hour)},
			{StatusID: ticket.StatusOpen, CreatedAt: opened},
		},
		policies: []sla.Policy{{ID: "p1", Name: "Urgent", Priority: 1, ResolutionTargetMins: 600}},
	}
}

type slaOut struct {
	OpenDate         *time.Time `json:"open_date"`
	EstimateTime     *float64   `json:"estimate_time"`
	LeadTime         *float64   `json:"lead_time"`
	StatusID         int        `json:"status_id"`
	WithinTarget     *bool      `json:"within_target"`
	RemainingMinutes *float64   `json:"remaining_minutes"`
	Stored           struct {
		EstimateTime *int `json:"estimate_time"`
		LeadTime     *int `json:"lead_time"`
	} `json:"stored"`
}

func send(a *app.App, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	a.R.ServeHTTP(rr, req)
	return rr
}

func TestGetSLA(t *testing.T) {
	db := openTicket()
	closeAt := time.Date(2024, 7, 1, 12, 0, 0, 0, ict)
	due := time.Date(2024, 7, 2, 12, 0, 0, 0, ict)
	db.ticket.CloseEstimate, db.ticket.DueDate = &closeAt, &due
	a := setup(t, db, nil)

	rr := send(a, http.MethodGet, "/tickets/t1/sla", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out slaOut
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.OpenDate == nil || !out.OpenDate.Equal(db.history[1].CreatedAt) {
		t.Fatalf("open_date = %v", out.OpenDate)
	}
	if *out.EstimateTime != 180 || *out.LeadTime != 720 {
		t.Fatalf("unexpected figures %v %v", *out.EstimateTime, *out.LeadTime)
	}
	if out.WithinTarget == nil || *out.WithinTarget {
		t.Fatalf("lead time 720 exceeds a 600 minute target")
	}
	if out.RemainingMinutes == nil || *out.RemainingMinutes != 660 {
		t.Fatalf("remaining = %v", out.RemainingMinutes)
	}
}

func TestGetSLANotFound(t *testing.T) {
	a := setup(t, &fakeDB{}, nil)
	rr := send(a, http.MethodGet, "/tickets/nope/sla", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetSLAWithoutOpenDate(t *testing.T) {
	db := openTicket()
	db.history = db.history[:1]
	due := time.Date(2024, 7, 2, 12, 0, 0, 0, ict)
	db.ticket.DueDate = &due
	a := setup(t, db, nil)
	rr := send(a, http.MethodGet, "/tickets/t1/sla", "")
	var out slaOut
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.OpenDate != nil || out.LeadTime != nil || out.EstimateTime != nil {
		t.Fatalf("nothing is computable before the ticket opens: %s", rr.Body.String())
	}
}

func TestUpdateSupport(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sub := rdb.Subscribe(context.Background(), events.Channel)
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatal(err)
	}

	db := openTicket()
	a := setup(t, db, rdb)
	body := `{"status_id":3,"close_estimate":"2024-07-01T12:00:00+07:00","due_date":"2024-07-02T12:00:00+07:00"}`
	rr := send(a, http.MethodPatch, "/tickets/t1/support", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out slaOut
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.StatusID != ticket.StatusInProgress || *out.Stored.EstimateTime != 180 || *out.Stored.LeadTime != 720 {
		t.Fatalf("unexpected response %s", rr.Body.String())
	}
	want := []string{"ticket_status_history", "update tickets", "ticket_events"}
	if len(db.execs) != len(want) {
		t.Fatalf("execs = %v", db.execs)
	}
	for i, w := range want {
		if !strings.Contains(db.execs[i], w) {
			t.Fatalf("exec %d = %q, want %q", i, db.execs[i], w)
		}
	}

	msg, err := sub.ReceiveMessage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var ev events.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != events.SLAUpdated || ev.TicketID != "t1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestUpdateSupportOutOfBounds(t *testing.T) {
	db := openTicket()
	a := setup(t, db, nil)
	rr := send(a, http.MethodPatch, "/tickets/t1/support", `{"close_estimate":"2024-07-08T09:00:00+07:00"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	var env app.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error == nil || env.Error.FieldErrors["estimate_time"] != "max" {
		t.Fatalf("unexpected envelope %s", rr.Body.String())
	}
	if len(db.execs) != 0 {
		t.Fatalf("nothing should be written: %v", db.execs)
	}
}

func TestUpdateSupportRejectsStatus(t *testing.T) {
	a := setup(t, openTicket(), nil)
	rr := send(a, http.MethodPatch, "/tickets/t1/support", `{"status_id":9}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUpdateSupportKeepsHistoryWhenSaveFails(t *testing.T) {
	db := openTicket()
	db.failOn = "update tickets"
	a := setup(t, db, nil)
	rr := send(a, http.MethodPatch, "/tickets/t1/support", `{"status_id":3}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(db.execs) != 0 {
		t.Fatalf("status history committed without the ticket row: %v", db.execs)
	}
}

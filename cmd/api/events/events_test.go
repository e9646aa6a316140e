package events

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apppkg "github.com/deskline/helpdesk-sla/cmd/api/app"
	authpkg "github.com/deskline/helpdesk-sla/cmd/api/auth"
	slaevents "github.com/deskline/helpdesk-sla/internal/events"
)

type event struct {
	id       int64
	ticketID string
	typ      string
	payload  []byte
}

type eventRows struct {
	idx int
	evs []event
}

func (r *eventRows) Close()                                       {}
func (r *eventRows) Err() error                                   { return nil }
func (r *eventRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *eventRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *eventRows) Next() bool                                   { return r.idx < len(r.evs) }
func (r *eventRows) Scan(dest ...any) error {
	ev := r.evs[r.idx]
	r.idx++
	*dest[0].(*int64) = ev.id
	*dest[1].(*string) = ev.typ
	*dest[2].(*[]byte) = ev.payload
	return nil
}
func (r *eventRows) Values() ([]any, error) { return nil, nil }
func (r *eventRows) RawValues() [][]byte    { return nil }
func (r *eventRows) Conn() *pgx.Conn        { return nil }

type fakeEventDB struct {
	mu     sync.Mutex
	events []event
}

func (db *fakeEventDB) add(ticketID, typ, payload string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.events = append(db.events, event{id: int64(len(db.events) + 1), ticketID: ticketID, typ: typ, payload: []byte(payload)})
}

func (db *fakeEventDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	ticketID, _ := args[0].(string)
	after, _ := args[1].(int64)
	out := []event{}
	for _, e := range db.events {
		if e.ticketID == ticketID && e.id > after {
			out = append(out, e)
		}
	}
	return &eventRows{evs: out}, nil
}

func (db *fakeEventDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func (db *fakeEventDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (db *fakeEventDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not supported")
}

func stream(t *testing.T, db *fakeEventDB, lastID string, during func()) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	pollInterval = 5 * time.Millisecond
	a := apppkg.NewApp(apppkg.Config{Env: "test", TestBypassAuth: true}, db, nil, nil, nil)
	a.R.GET("/tickets/:id/events", authpkg.Middleware(a), Stream(a))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets/t1/events", nil)
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		a.R.ServeHTTP(rr, req)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	if during != nil {
		during()
		time.Sleep(30 * time.Millisecond)
	}
	cancel()
	<-done
	return rr.Body.String()
}

func TestStreamResume(t *testing.T) {
	db := &fakeEventDB{}
	db.add("t1", slaevents.SLAUpdated, `{"lead_time":660}`)
	db.add("t2", slaevents.SLAUpdated, `{"lead_time":60}`)
	db.add("t1", slaevents.SLABreached, `{"overdue_business_minutes":30}`)

	body := stream(t, db, "1", nil)
	if strings.Contains(body, "id: 1\n") || strings.Contains(body, `"lead_time":60`) {
		t.Fatalf("stream included old or foreign event: %s", body)
	}
	if !strings.Contains(body, "id: 3\nevent: sla_breached\n") {
		t.Fatalf("stream missing new event: %s", body)
	}
}

func TestStreamFollowsNewEvents(t *testing.T) {
	db := &fakeEventDB{}
	body := stream(t, db, "", func() { db.add("t1", slaevents.SLAUpdated, `{"estimate_time":180}`) })
	if !strings.Contains(body, `"estimate_time":180`) {
		t.Fatalf("stream missing followed event: %s", body)
	}
}

func TestStreamRejectsBadLastEventID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := apppkg.NewApp(apppkg.Config{Env: "test", TestBypassAuth: true}, &fakeEventDB{}, nil, nil, nil)
	a.R.GET("/tickets/:id/events", authpkg.Middleware(a), Stream(a))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets/t1/events", nil)
	req.Header.Set("Last-Event-ID", "abc")
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestStreamOutlivesWriteTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pollInterval = 5 * time.Millisecond
	db := &fakeEventDB{}
	a := apppkg.NewApp(apppkg.Config{Env: "test", TestBypassAuth: true}, db, nil, nil, nil)
	a.R.GET("/tickets/:id/events", authpkg.Middleware(a), Stream(a))
	srv := httptest.NewUnstartedServer(a.R)
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/tickets/t1/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	got := make(chan string, 1)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "event: ") {
				got <- sc.Text()
				return
			}
		}
		close(got)
	}()
	time.Sleep(150 * time.Millisecond)
	db.add("t1", slaevents.SLABreached, `{"overdue_business_minutes":5}`)

	select {
	case line, ok := <-got:
		if !ok || line != "event: sla_breached" {
			t.Fatalf("stream closed before the late event (last line %q)", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

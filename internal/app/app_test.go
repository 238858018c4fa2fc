package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository/memory"
	"github.com/iliyamo/table-reservation/internal/utils"
)

const (
	secret = "test-secret"
	day    = "2026-10-20"
)

type recorder struct {
	mu   sync.Mutex
	sent []queue.Notification
}

func (r *recorder) Publish(_ context.Context, n queue.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) kinds() []queue.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []queue.NotificationKind
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type client struct {
	t     *testing.T
	app   *App
	token string
}

func newClient(t *testing.T, checks map[string]handler.Check) (*client, *recorder) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	pub := &recorder{}
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	a := New(Options{
		Store:     memory.New(),
		Engine:    config.EngineConfig{PeakStartHour: 18, PeakEndHour: 21, PeakMaxDuration: 120, SlotInterval: 30},
		Publisher: pub,
		JWTSecret: secret,
		Checks:    checks,
		Log:       log,
		Now:       func() time.Time { return now },
	})
	tok, err := utils.NewAccessToken(secret, "host-1", utils.RoleStaff, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return &client{t: t, app: a, token: tok.Token}, pub
}

// do sends a request; staff requests carry the bearer token.
func (c *client) do(method, path string, body any, staff bool) (int, map[string]any) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if staff {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.app.Echo.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec.Code, out
}

func (c *client) must(status int, method, path string, body any, staff bool) map[string]any {
	c.t.Helper()
	got, out := c.do(method, path, body, staff)
	if got != status {
		c.t.Fatalf("%s %s = %d, want %d: %v", method, path, got, status, out)
	}
	return out
}

func (c *client) seed() (rid, small, large string) {
	c.t.Helper()
	r := c.must(http.StatusCreated, http.MethodPost, "/v1/restaurants",
		map[string]any{"name": "Bistro", "opening_time": "10:00", "closing_time": "22:00"}, true)
	rid = r["id"].(string)
	small = c.must(http.StatusCreated, http.MethodPost, "/v1/restaurants/"+rid+"/tables",
		map[string]any{"table_number": 1, "capacity": 2}, true)["id"].(string)
	large = c.must(http.StatusCreated, http.MethodPost, "/v1/restaurants/"+rid+"/tables",
		map[string]any{"table_number": 2, "capacity": 4}, true)["id"].(string)
	return rid, small, large
}

func bookingReq(rid string, extra map[string]any) map[string]any {
	b := map[string]any{
		"restaurant_id": rid, "party_size": 2, "date": day, "start_time": "19:00",
		"duration_minutes": 90, "customer_name": "Ada", "customer_email": "ada@example.com",
	}
	for k, v := range extra {
		b[k] = v
	}
	return b
}

func TestBookingFlow(t *testing.T) {
	c, pub := newClient(t, nil)
	rid, small, large := c.seed()

	avail := c.must(http.StatusOK, http.MethodGet, "/v1/restaurants/"+rid+"/availability?date="+day+"&party_size=2", nil, false)
	if slots := avail["available_slots"].([]any); len(slots) == 0 {
		t.Fatal("no slots on an empty day")
	}

	first := c.must(http.StatusCreated, http.MethodPost, "/v1/reservations", bookingReq(rid, nil), false)
	if first["table_id"] != small || first["status"] != "PENDING" {
		t.Fatalf("first booking = %v, want the two-top", first)
	}

	_, conflict := c.do(http.MethodPost, "/v1/reservations", bookingReq(rid, map[string]any{"table_id": small}), false)
	if conflict["code"] != "TABLE_CONFLICT" {
		t.Fatalf("explicit clash = %v", conflict)
	}

	second := c.must(http.StatusCreated, http.MethodPost, "/v1/reservations", bookingReq(rid, nil), false)
	if second["table_id"] != large {
		t.Fatalf("second booking = %v, want the four-top", second)
	}

	status, full := c.do(http.MethodPost, "/v1/reservations", bookingReq(rid, map[string]any{"start_time": "19:30"}), false)
	if status != http.StatusConflict || full["code"] != "NO_CAPACITY" || full["hint"] != "join_waitlist" {
		t.Fatalf("full house = %d %v", status, full)
	}

	entry := c.must(http.StatusCreated, http.MethodPost, "/v1/waitlist", map[string]any{
		"restaurant_id": rid, "party_size": 2, "date": day,
		"preferred_start_time": "18:30", "preferred_end_time": "21:00", "duration_minutes": 90,
		"customer_name": "Grace",
	}, false)
	eid := entry["id"].(string)
	pos := c.must(http.StatusOK, http.MethodGet, "/v1/waitlist/"+eid+"/position", nil, false)
	if pos["position"] != float64(1) || pos["estimated_wait_minutes"] != float64(30) {
		t.Fatalf("position = %v", pos)
	}

	fid := first["id"].(string)
	if status, _ := c.do(http.MethodPost, "/v1/reservations/"+fid+"/confirm", nil, false); status != http.StatusUnauthorized {
		t.Fatalf("confirm without token = %d", status)
	}
	confirmed := c.must(http.StatusOK, http.MethodPost, "/v1/reservations/"+fid+"/confirm", nil, true)
	if confirmed["status"] != "CONFIRMED" {
		t.Fatalf("confirmed = %v", confirmed)
	}

	cancelled := c.must(http.StatusOK, http.MethodPost, "/v1/reservations/"+fid+"/cancel", map[string]any{"reason": "flu"}, false)
	if cancelled["status"] != "CANCELLED" || cancelled["cancellation_reason"] != "flu" {
		t.Fatalf("cancelled = %v", cancelled)
	}
	got := c.must(http.StatusOK, http.MethodGet, "/v1/waitlist/"+eid, nil, false)
	if got["status"] != "NOTIFIED" || got["notification_count"] != float64(1) {
		t.Fatalf("waitlist entry after cancellation = %v", got)
	}

	_, bad := c.do(http.MethodPost, "/v1/reservations/"+fid+"/complete", nil, true)
	if bad["code"] != "INVALID_STATE_TRANSITION" || bad["current_status"] != "CANCELLED" {
		t.Fatalf("complete after cancel = %v", bad)
	}

	want := []queue.NotificationKind{
		queue.KindConfirmation, queue.KindConfirmation, queue.KindConfirmation,
		queue.KindCancellation, queue.KindWaitlistOffer,
	}
	if kinds := pub.kinds(); !slices.Equal(kinds, want) {
		t.Fatalf("notifications = %v, want %v", kinds, want)
	}

	list := c.must(http.StatusOK, http.MethodGet, "/v1/restaurants/"+rid+"/reservations?date="+day+"&active=true", nil, true)
	if items := list["items"].([]any); len(items) != 1 {
		t.Fatalf("active reservations = %d, want 1", len(items))
	}
}

func TestRequestValidation(t *testing.T) {
	c, _ := newClient(t, nil)
	rid, _, _ := c.seed()

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"peak cap", map[string]any{"duration_minutes": 150}, http.StatusBadRequest, "PEAK_HOUR_DURATION_EXCEEDED"},
		{"bad time", map[string]any{"start_time": "7pm"}, http.StatusBadRequest, "INVALID_TIME_FORMAT"},
		{"bad date", map[string]any{"date": "20-10-2026"}, http.StatusBadRequest, "INVALID_DATE_FORMAT"},
		{"after close", map[string]any{"start_time": "21:00"}, http.StatusBadRequest, "OUTSIDE_OPERATING_HOURS"},
		{"too many", map[string]any{"party_size": 9}, http.StatusConflict, "NO_CAPACITY"},
		{"unknown restaurant", map[string]any{"restaurant_id": "nope"}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, out := c.do(http.MethodPost, "/v1/reservations", bookingReq(rid, tc.body), false)
			if status != tc.status || out["code"] != tc.code {
				t.Fatalf("got %d %v, want %d %s", status, out, tc.status, tc.code)
			}
		})
	}

	if status, out := c.do(http.MethodPost, "/v1/reservations/x/dance", nil, true); status != http.StatusBadRequest {
		t.Fatalf("unknown action = %d %v", status, out)
	}
	if status, _ := c.do(http.MethodPost, "/v1/restaurants", map[string]any{"name": "x"}, false); status != http.StatusUnauthorized {
		t.Fatalf("restaurant create without token = %d", status)
	}
}

func TestRecurringSeriesOverHTTP(t *testing.T) {
	c, _ := newClient(t, nil)
	rid, _, _ := c.seed()

	s := c.must(http.StatusCreated, http.MethodPost, "/v1/series", map[string]any{
		"restaurant_id": rid, "party_size": 2, "start_time": "12:00", "duration_minutes": 60,
		"pattern": "WEEKLY", "day_of_week": 2, "start_date": day, "max_occurrences": 2,
	}, true)
	if s["next_occurrence_date"] != day {
		t.Fatalf("series = %v", s)
	}
	run := c.must(http.StatusOK, http.MethodPost, "/v1/series/run?date=2026-10-18", nil, true)
	rep := run["report"].(map[string]any)
	if rep["created"] != float64(2) || rep["completed"] != float64(1) {
		t.Fatalf("report = %v", rep)
	}
	got := c.must(http.StatusOK, http.MethodGet, "/v1/series/"+s["id"].(string), nil, true)
	if got["status"] != "COMPLETED" {
		t.Fatalf("series after run = %v", got)
	}
}

func TestHealth(t *testing.T) {
	c, _ := newClient(t, nil)
	if out := c.must(http.StatusOK, http.MethodGet, "/healthz", nil, false); out["status"] != "ok" {
		t.Fatalf("health = %v", out)
	}

	down, _ := newClient(t, map[string]handler.Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	out := down.must(http.StatusServiceUnavailable, http.MethodGet, "/healthz", nil, false)
	if out["status"] != "degraded" {
		t.Fatalf("health = %v", out)
	}
}

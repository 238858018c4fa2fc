package ledger

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/availability"
	"github.com/iliyamo/table-reservation/internal/catalog"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository/memory"
)

const day = "2026-10-20"

type env struct {
	store  *memory.Store
	ledger *Ledger
	engine *availability.Engine
}

func newEnv(t *testing.T, policy availability.Policy, tables ...model.Table) env {
	t.Helper()
	ctx := context.Background()
	log := logrus.New()
	log.SetOutput(io.Discard)

	st := memory.New()
	if err := st.CreateRestaurant(ctx, &model.Restaurant{ID: "r1", Name: "Bistro", OpeningTime: "10:00", ClosingTime: "22:00", IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if len(tables) == 0 {
		tables = []model.Table{{ID: "t1", TableNumber: 1, Capacity: 4, MinCapacity: 1}}
	}
	for _, tb := range tables {
		tb.RestaurantID, tb.IsActive = "r1", true
		if err := st.CreateTable(ctx, &tb); err != nil {
			t.Fatal(err)
		}
	}
	cat := catalog.New(st, log)
	cache := availability.NewMemoryCache()
	clock := func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	return env{
		store:  st,
		ledger: New(st, cat, policy, cache, lock.NewKeyedMutex(), log, WithClock(clock)),
		engine: availability.NewEngine(st, cat, st, cache, availability.Config{Policy: policy, CacheTTL: time.Hour}, log),
	}
}

func booking(start string, party, duration int) CreateRequest {
	return CreateRequest{RestaurantID: "r1", PartySize: party, Date: day, StartTime: start, DurationMinutes: duration, CustomerName: "Ada"}
}

func slotHasTable(res *availability.Result, start, tableID string) bool {
	for _, s := range res.AvailableSlots {
		if s.StartTime != start {
			continue
		}
		for _, t := range s.AvailableTables {
			if t.ID == tableID {
				return true
			}
		}
	}
	return false
}

func TestEndToEndBookingScenario(t *testing.T) {
	e := newEnv(t, availability.DefaultPolicy())
	ctx := context.Background()

	first, events, err := e.ledger.Create(ctx, booking("19:00", 2, 90))
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != model.StatusPending || first.EndTime != "20:30" || first.TableID != "t1" {
		t.Fatalf("first = %+v", first)
	}
	if len(events) != 1 || events[0].Type != queue.ReservationCreated {
		t.Fatalf("events = %+v", events)
	}

	second := booking("20:00", 2, 90)
	second.TableID = "t1"
	if _, _, err := e.ledger.Create(ctx, second); !apperror.Is(err, apperror.TableConflict) {
		t.Fatalf("explicit overlap: err = %v", err)
	}
	second.TableID = ""
	_, _, err = e.ledger.Create(ctx, second)
	ae, ok := apperror.As(err)
	if !ok || ae.Kind != apperror.NoCapacity || ae.Hint != apperror.HintJoinWaitlist {
		t.Fatalf("auto overlap: err = %v", err)
	}

	q := availability.Query{RestaurantID: "r1", Date: day, PartySize: 2, DurationMinutes: 90}
	res, err := e.engine.GetAvailability(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if slotHasTable(res, "19:00", "t1") {
		t.Fatal("19:00 offered while booked")
	}

	cancelled, events, err := e.ledger.Cancel(ctx, first.ID, "plans changed")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelledAt == nil || *cancelled.CancellationReason != "plans changed" {
		t.Fatalf("cancelled = %+v", cancelled)
	}
	if len(events) != 2 || events[1].Type != queue.SlotFreed || events[1].Freed.Capacity != 4 || events[1].Freed.StartTime != "19:00" {
		t.Fatalf("events = %+v", events)
	}

	res, err = e.engine.GetAvailability(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if !slotHasTable(res, "19:00", "t1") {
		t.Fatal("19:00 not offered after cancellation")
	}
}

func TestTouchingBookingsDoNotConflict(t *testing.T) {
	e := newEnv(t, availability.DefaultPolicy())
	ctx := context.Background()
	if _, _, err := e.ledger.Create(ctx, booking("12:00", 2, 60)); err != nil {
		t.Fatal(err)
	}
	r, _, err := e.ledger.Create(ctx, booking("13:00", 2, 60))
	if err != nil {
		t.Fatalf("back-to-back booking rejected: %v", err)
	}
	if r.TableID != "t1" {
		t.Fatalf("table = %s", r.TableID)
	}
}

func TestCacheInvalidatedOnCreate(t *testing.T) {
	e := newEnv(t, availability.DefaultPolicy())
	ctx := context.Background()
	q := availability.Query{RestaurantID: "r1", Date: day, PartySize: 2, DurationMinutes: 60}
	before, err := e.engine.GetAvailability(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if !slotHasTable(before, "12:00", "t1") {
		t.Fatal("12:00 missing before booking")
	}
	if _, _, err := e.ledger.Create(ctx, booking("12:00", 2, 60)); err != nil {
		t.Fatal(err)
	}
	after, err := e.engine.GetAvailability(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if slotHasTable(after, "12:00", "t1") {
		t.Fatal("stale cached availability returned after booking")
	}
	if len(after.AvailableSlots) >= len(before.AvailableSlots) {
		t.Fatalf("slots %d -> %d", len(before.AvailableSlots), len(after.AvailableSlots))
	}
}

func TestPeakHourDurationCap(t *testing.T) {
	policy := availability.Policy{PeakStartHour: 18, PeakEndHour: 21, MaxPeakDuration: 90, SlotInterval: 30}
	e := newEnv(t, policy)
	ctx := context.Background()
	if _, _, err := e.ledger.Create(ctx, booking("19:00", 2, 120)); !apperror.Is(err, apperror.PeakHourDurationExceeded) {
		t.Fatalf("120 min at 19:00: err = %v", err)
	}
	r, _, err := e.ledger.Create(ctx, booking("19:00", 2, 90))
	if err != nil {
		t.Fatalf("90 min at 19:00: %v", err)
	}
	if r.DurationMinutes != 90 {
		t.Fatalf("duration silently changed to %d", r.DurationMinutes)
	}
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t, availability.DefaultPolicy())
	ctx := context.Background()
	explicit := func(req CreateRequest, table string) CreateRequest { req.TableID = table; return req }
	cases := []struct {
		name string
		req  CreateRequest
		want apperror.Kind
	}{
		{"party zero", booking("12:00", 0, 60), apperror.InvalidInput},
		{"too short", booking("12:00", 2, 15), apperror.InvalidInput},
		{"too long", booking("12:00", 2, 300), apperror.InvalidInput},
		{"bad date", CreateRequest{RestaurantID: "r1", PartySize: 2, Date: "2026/10/20", StartTime: "12:00", DurationMinutes: 60}, apperror.InvalidDateFormat},
		{"bad time", booking("12.00", 2, 60), apperror.InvalidTimeFormat},
		{"after closing", booking("21:30", 2, 60), apperror.OutsideOperatingHours},
		{"unknown restaurant", CreateRequest{RestaurantID: "zz", PartySize: 2, Date: day, StartTime: "12:00", DurationMinutes: 60}, apperror.NotFound},
		{"unknown table", explicit(booking("12:00", 2, 60), "nope"), apperror.NotFound},
		{"table too small", explicit(booking("12:00", 6, 60), "t1"), apperror.CapacityMismatch},
		{"nobody fits", booking("12:00", 6, 60), apperror.NoCapacity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := e.ledger.Create(ctx, tc.req); !apperror.Is(err, tc.want) {
				t.Fatalf("err = %v, want %s", err, tc.want)
			}
		})
	}

	r, _ := e.store.GetRestaurant(ctx, "r1")
	r.IsActive = false
	_ = e.store.UpdateRestaurant(ctx, r)
	if _, _, err := e.ledger.Create(ctx, booking("12:00", 2, 60)); !apperror.Is(err, apperror.RestaurantInactive) {
		t.Fatalf("inactive: err = %v", err)
	}
}

func TestBestFitAssignment(t *testing.T) {
	e := newEnv(t, availability.DefaultPolicy(),
		model.Table{ID: "big", TableNumber: 1, Capacity: 8, MinCapacity: 1},
		model.Table{ID: "small-b", TableNumber: 3, Capacity: 2, MinCapacity: 1},
		model.Table{ID: "small-a", TableNumber: 2, Capacity: 2, MinCapacity: 1},
	)
	ctx := context.Background()
	want := []string{"small-a", "small-b", "big"}
	for i, w := range want {
		r, _, err := e.ledger.Create(ctx, booking("12:00", 2, 60))
		if err != nil {
			t.Fatalf("booking %d: %v", i, err)
		}
		if r.TableID != w {
			t.Fatalf("booking %d got %s, want %s", i, r.TableID, w)
		}
	}
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	e := newEnv(t, availability.DefaultPolicy())
	ctx := context.Background()
	const n = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(explicit bool) {
			defer wg.Done()
			req := booking("19:00", 2, 90)
			if explicit {
				req.TableID = "t1"
			}
			_, _, err := e.ledger.Create(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case apperror.Is(err, apperror.TableConflict), apperror.Is(err, apperror.NoCapacity):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i%2 == 0)
	}
	wg.Wait()
	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
	active, err := e.store.ListActiveByRestaurantAndDate(ctx, "r1", day)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("%d active reservations stored", len(active))
	}
}

func TestLifecycleThroughLedger(t *testing.T) {
	e := newEnv(t, availability.DefaultPolicy())
	ctx := context.Background()
	r, _, err := e.ledger.Create(ctx, booking("12:00", 2, 60))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.ledger.MarkSeated(ctx, r.ID); !apperror.Is(err, apperror.InvalidStateTransition) {
		t.Fatalf("seat from PENDING: err = %v", err)
	}
	r, events, err := e.ledger.Confirm(ctx, r.ID)
	if err != nil || r.ConfirmedAt == nil || len(events) != 1 || events[0].Type != queue.ReservationConfirmed {
		t.Fatalf("confirm: %+v %+v %v", r, events, err)
	}
	if r, _, err = e.ledger.MarkSeated(ctx, r.ID); err != nil || r.SeatedAt == nil {
		t.Fatalf("seat: %v", err)
	}
	if r, _, err = e.ledger.MarkCompleted(ctx, r.ID); err != nil || r.Status != model.StatusCompleted {
		t.Fatalf("complete: %v", err)
	}

	_, _, err = e.ledger.Cancel(ctx, r.ID, "")
	ae, ok := apperror.As(err)
	if !ok || ae.Kind != apperror.InvalidStateTransition || ae.From != "COMPLETED" || ae.To != "cancel" {
		t.Fatalf("cancel completed: err = %#v", err)
	}
	if _, _, err := e.ledger.Update(ctx, r.ID, UpdateRequest{}); !apperror.Is(err, apperror.InvalidStateTransition) {
		t.Fatalf("update completed: err = %v", err)
	}
	if _, _, err := e.ledger.Confirm(ctx, "missing"); !apperror.Is(err, apperror.NotFound) {
		t.Fatalf("missing: err = %v", err)
	}
}

func TestNoShowFreesSlot(t *testing.T) {
	e := newEnv(t, availability.DefaultPolicy())
	ctx := context.Background()
	r, _, _ := e.ledger.Create(ctx, booking("12:00", 2, 60))
	_, events, err := e.ledger.MarkNoShow(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Type != queue.ReservationNoShow || events[1].Type != queue.SlotFreed {
		t.Fatalf("events = %+v", events)
	}
	if _, _, err := e.ledger.Create(ctx, booking("12:00", 2, 60)); err != nil {
		t.Fatalf("slot not released: %v", err)
	}
}

func TestUpdateRechecksFreedom(t *testing.T) {
	e := newEnv(t, availability.DefaultPolicy(),
		model.Table{ID: "t1", TableNumber: 1, Capacity: 2, MinCapacity: 1},
		model.Table{ID: "t2", TableNumber: 2, Capacity: 6, MinCapacity: 1},
	)
	ctx := context.Background()
	a, _, _ := e.ledger.Create(ctx, booking("12:00", 2, 60))
	b, _, _ := e.ledger.Create(ctx, booking("14:00", 2, 60))
	if a.TableID != "t1" || b.TableID != "t1" {
		t.Fatalf("tables %s %s", a.TableID, b.TableID)
	}

	// Shifting within its own window never conflicts with itself.
	start := "12:30"
	moved, _, err := e.ledger.Update(ctx, a.ID, UpdateRequest{StartTime: &start})
	if err != nil || moved.EndTime != "13:30" || moved.TableID != "t1" {
		t.Fatalf("shift: %+v %v", moved, err)
	}

	// Explicitly onto b's slot on the same table is a conflict.
	start, table := "13:30", "t1"
	if _, _, err := e.ledger.Update(ctx, a.ID, UpdateRequest{StartTime: &start, TableID: &table}); !apperror.Is(err, apperror.TableConflict) {
		t.Fatalf("explicit clash: err = %v", err)
	}

	// Without a table the booking moves to the next best fit.
	moved, _, err = e.ledger.Update(ctx, a.ID, UpdateRequest{StartTime: &start})
	if err != nil || moved.TableID != "t2" {
		t.Fatalf("auto move: %+v %v", moved, err)
	}

	// A bigger party must leave the two-seat table, but the six-seat one is
	// now taken by a at 13:30-14:30.
	party := 5
	if _, _, err := e.ledger.Update(ctx, b.ID, UpdateRequest{PartySize: &party}); !apperror.Is(err, apperror.NoCapacity) {
		t.Fatalf("grow into clash: err = %v", err)
	}
	later := "16:00"
	grown, _, err := e.ledger.Update(ctx, b.ID, UpdateRequest{PartySize: &party, StartTime: &later})
	if err != nil || grown.TableID != "t2" {
		t.Fatalf("grow: %+v %v", grown, err)
	}
	got, _ := e.ledger.Get(ctx, b.ID)
	if got.PartySize != 5 || got.TableID != "t2" || got.StartTime != "16:00" {
		t.Fatalf("stored = %+v", got)
	}
}

func TestUpdateToAnotherDateInvalidatesBothDays(t *testing.T) {
	e := newEnv(t, availability.DefaultPolicy())
	ctx := context.Background()
	r, _, err := e.ledger.Create(ctx, booking("19:00", 2, 90))
	if err != nil {
		t.Fatal(err)
	}

	const nextDay = "2026-10-21"
	oldQ := availability.Query{RestaurantID: "r1", Date: day, PartySize: 2, DurationMinutes: 90}
	newQ := availability.Query{RestaurantID: "r1", Date: nextDay, PartySize: 2, DurationMinutes: 90}
	// Warm both days.
	for _, q := range []availability.Query{oldQ, newQ} {
		if _, err := e.engine.GetAvailability(ctx, q); err != nil {
			t.Fatal(err)
		}
	}

	date := nextDay
	if _, _, err := e.ledger.Update(ctx, r.ID, UpdateRequest{Date: &date}); err != nil {
		t.Fatal(err)
	}

	res, err := e.engine.GetAvailability(ctx, oldQ)
	if err != nil {
		t.Fatal(err)
	}
	if !slotHasTable(res, "19:00", "t1") {
		t.Fatal("old day still shows 19:00 taken")
	}
	res, err = e.engine.GetAvailability(ctx, newQ)
	if err != nil {
		t.Fatal(err)
	}
	if slotHasTable(res, "19:00", "t1") {
		t.Fatal("new day still shows 19:00 free")
	}
}

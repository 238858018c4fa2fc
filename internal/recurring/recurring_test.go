package recurring

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/availability"
	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/catalog"
	"github.com/iliyamo/table-reservation/internal/ledger"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/notify"
	"github.com/iliyamo/table-reservation/internal/repository/memory"
	"github.com/iliyamo/table-reservation/internal/waitlist"
)

const today = "2026-10-18"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) set(date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now, _ = time.Parse(time.DateOnly, date)
	c.now = c.now.Add(9 * time.Hour)
}

type fixture struct {
	svc     *Service
	booking *booking.Service
	store   *memory.Store
	clock   *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logrus.New()
	log.SetOutput(io.Discard)
	st := memory.New()
	if err := st.CreateRestaurant(ctx, &model.Restaurant{ID: "r1", Name: "Bistro", OpeningTime: "10:00", ClosingTime: "22:00", IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateTable(ctx, &model.Table{ID: "t1", RestaurantID: "r1", TableNumber: 1, Capacity: 4, MinCapacity: 1, IsActive: true}); err != nil {
		t.Fatal(err)
	}
	c := &clock{}
	c.set(today)
	locks := lock.NewKeyedMutex()
	l := ledger.New(st, catalog.New(st, log), availability.DefaultPolicy(), nil, locks, log, ledger.WithClock(c.Now))
	w := waitlist.New(st, locks, log, waitlist.WithClock(c.Now))
	b := booking.New(l, w, notify.NewDispatcher(notify.NewLogPublisher(log)), log)
	return &fixture{
		svc:     New(st, b, locks, log, WithClock(c.Now)),
		booking: b,
		store:   st,
		clock:   c,
	}
}

func weeklyRequest() SeriesRequest {
	return SeriesRequest{
		RestaurantID:    "r1",
		TableID:         strp("t1"),
		PartySize:       2,
		StartTime:       "19:00",
		DurationMinutes: 90,
		Pattern:         model.PatternWeekly,
		DayOfWeek:       intp(2),
		StartDate:       "2026-10-20",
		CustomerName:    "Tuesday Club",
	}
}

func TestCreateSeriesComputesFirstOccurrence(t *testing.T) {
	f := newFixture(t)
	req := weeklyRequest()
	req.StartDate = "2026-10-18"
	rs, err := f.svc.CreateSeries(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Status != model.SeriesActive || rs.NextOccurrenceDate == nil || *rs.NextOccurrenceDate != "2026-10-20" {
		t.Fatalf("series = %+v", rs)
	}
}

func TestCreateSeriesValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SeriesRequest)
		kind   apperror.Kind
	}{
		{"pattern", func(r *SeriesRequest) { r.Pattern = "HOURLY" }, apperror.InvalidInput},
		{"party", func(r *SeriesRequest) { r.PartySize = 0 }, apperror.InvalidInput},
		{"time", func(r *SeriesRequest) { r.StartTime = "7pm" }, apperror.InvalidTimeFormat},
		{"start date", func(r *SeriesRequest) { r.StartDate = "20/10/2026" }, apperror.InvalidDateFormat},
		{"end before start", func(r *SeriesRequest) { r.EndDate = strp("2026-10-01") }, apperror.InvalidInput},
		{"weekday", func(r *SeriesRequest) { r.DayOfWeek = intp(7) }, apperror.InvalidInput},
		{"day of month", func(r *SeriesRequest) { r.DayOfMonth = intp(0) }, apperror.InvalidInput},
		{"cap", func(r *SeriesRequest) { r.MaxOccurrences = intp(0) }, apperror.InvalidInput},
		{"no occurrence", func(r *SeriesRequest) { r.StartDate, r.EndDate = "2026-10-21", strp("2026-10-26") }, apperror.InvalidInput},
		{"restaurant", func(r *SeriesRequest) { r.RestaurantID = "nope" }, apperror.NotFound},
	}
	f := newFixture(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := weeklyRequest()
			tc.mutate(&req)
			_, err := f.svc.CreateSeries(context.Background(), req)
			if !apperror.Is(err, tc.kind) {
				t.Fatalf("err = %v, want %s", err, tc.kind)
			}
		})
	}
}

func TestConflictingOccurrenceIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.booking.Create(ctx, ledger.CreateRequest{
		RestaurantID: "r1", TableID: "t1", PartySize: 3, Date: "2026-10-27", StartTime: "19:30", DurationMinutes: 60,
	}); err != nil {
		t.Fatal(err)
	}
	rs, err := f.svc.CreateSeries(ctx, weeklyRequest())
	if err != nil {
		t.Fatal(err)
	}

	rep, err := f.svc.ProcessScheduledOccurrences(ctx, today)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Created != 1 || rep.Skipped != 1 || rep.Completed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	got, _ := f.svc.Get(ctx, rs.ID)
	if got.OccurrencesCreated != 1 || *got.LastOccurrenceDate != "2026-10-20" || *got.NextOccurrenceDate != "2026-11-03" {
		t.Fatalf("series = %+v", got)
	}
	booked, _ := f.store.ListActiveBySeries(ctx, rs.ID, today)
	if len(booked) != 1 || booked[0].Date != "2026-10-20" || booked[0].TableID != "t1" {
		t.Fatalf("series reservations = %+v", booked)
	}
}

func TestSeriesCompletesAtCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rs, err := f.svc.CreateSeries(ctx, SeriesRequest{
		RestaurantID: "r1", PartySize: 2, StartTime: "12:00", DurationMinutes: 60,
		Pattern: model.PatternDaily, StartDate: "2026-10-19", MaxOccurrences: intp(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	rep, err := f.svc.ProcessScheduledOccurrences(ctx, today)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Created != 2 || rep.Completed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	got, _ := f.svc.Get(ctx, rs.ID)
	if got.Status != model.SeriesCompleted || got.NextOccurrenceDate != nil || got.OccurrencesCreated != 2 {
		t.Fatalf("series = %+v", got)
	}

	out, err := f.svc.MaterializeNext(ctx, rs.ID)
	if err != nil || !out.Skipped || out.Reservation != nil {
		t.Fatalf("materialize after completion = %+v, %v", out, err)
	}
}

func TestPastOccurrenceIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rs, err := f.svc.CreateSeries(ctx, weeklyRequest())
	if err != nil {
		t.Fatal(err)
	}
	f.clock.set("2026-10-22")
	out, err := f.svc.MaterializeNext(ctx, rs.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Skipped || out.Date != "2026-10-20" || *out.Series.NextOccurrenceDate != "2026-10-27" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rs, err := f.svc.CreateSeries(ctx, weeklyRequest())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Pause(ctx, rs.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Pause(ctx, rs.ID); !apperror.Is(err, apperror.InvalidStateTransition) {
		t.Fatalf("second pause err = %v", err)
	}
	rep, err := f.svc.ProcessScheduledOccurrences(ctx, today)
	if err != nil || rep.SeriesProcessed != 0 {
		t.Fatalf("paused series processed: %+v, %v", rep, err)
	}

	f.clock.set("2026-10-22")
	got, err := f.svc.Resume(ctx, rs.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.SeriesActive || *got.NextOccurrenceDate != "2026-10-27" {
		t.Fatalf("resumed = %+v", got)
	}
}

func TestResumeDoesNotRebookMaterializedDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := weeklyRequest()
	req.TableID = nil
	rs, err := f.svc.CreateSeries(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ProcessScheduledOccurrences(ctx, today); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Pause(ctx, rs.ID); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.Resume(ctx, rs.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *got.NextOccurrenceDate != "2026-11-03" {
		t.Fatalf("resumed cursor = %s, want 2026-11-03", *got.NextOccurrenceDate)
	}
	if _, err := f.svc.ProcessScheduledOccurrences(ctx, today); err != nil {
		t.Fatal(err)
	}

	got, _ = f.svc.Get(ctx, rs.ID)
	if got.OccurrencesCreated != 2 {
		t.Fatalf("occurrences created = %d, want 2", got.OccurrencesCreated)
	}
	booked, _ := f.store.ListActiveBySeries(ctx, rs.ID, today)
	perDate := map[string]int{}
	for _, r := range booked {
		perDate[r.Date]++
	}
	for date, n := range perDate {
		if n != 1 {
			t.Fatalf("date %s booked %d times", date, n)
		}
	}
	if len(perDate) != 2 {
		t.Fatalf("booked dates = %v", perDate)
	}
}

func TestCancelFutureOccurrences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rs, err := f.svc.CreateSeries(ctx, SeriesRequest{
		RestaurantID: "r1", PartySize: 2, StartTime: "12:00", DurationMinutes: 60,
		Pattern: model.PatternDaily, StartDate: "2026-10-19", MaxOccurrences: intp(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ProcessScheduledOccurrences(ctx, today); err != nil {
		t.Fatal(err)
	}
	booked, _ := f.store.ListActiveBySeries(ctx, rs.ID, today)
	if len(booked) != 3 {
		t.Fatalf("booked %d occurrences, want 3", len(booked))
	}

	got, n, err := f.svc.Cancel(ctx, rs.ID, true)
	if !apperror.Is(err, apperror.InvalidStateTransition) {
		t.Fatalf("cancelling a completed series: %+v, %d, %v", got, n, err)
	}

	rs2, err := f.svc.CreateSeries(ctx, SeriesRequest{
		RestaurantID: "r1", PartySize: 2, StartTime: "15:00", DurationMinutes: 60,
		Pattern: model.PatternDaily, StartDate: "2026-10-19", MaxOccurrences: intp(10),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ProcessScheduledOccurrences(ctx, today); err != nil {
		t.Fatal(err)
	}
	got, n, err = f.svc.Cancel(ctx, rs2.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.SeriesCancelled || n != 10 {
		t.Fatalf("cancel = %+v, %d", got, n)
	}
	left, _ := f.store.ListActiveBySeries(ctx, rs2.ID, today)
	if len(left) != 0 {
		t.Fatalf("%d reservations still active", len(left))
	}
	kept, _ := f.store.ListActiveBySeries(ctx, rs.ID, today)
	if len(kept) != 3 {
		t.Fatalf("other series lost reservations: %d", len(kept))
	}
}

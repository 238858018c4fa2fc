package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

func seedTable(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateRestaurant(ctx, &model.Restaurant{ID: "r1", Name: "Bistro", OpeningTime: "10:00", ClosingTime: "22:00", IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateTable(ctx, &model.Table{ID: "t1", RestaurantID: "r1", TableNumber: 1, Capacity: 4, MinCapacity: 1, IsActive: true}); err != nil {
		t.Fatal(err)
	}
}

func booking(id string, start, end int) *model.Reservation {
	return &model.Reservation{
		ID: id, RestaurantID: "r1", TableID: "t1", PartySize: 2, Date: "2026-10-20",
		StartMinute: start, EndMinute: end, DurationMinutes: end - start, Status: model.StatusPending,
	}
}

func TestInsertReservationRejectsOverlap(t *testing.T) {
	s := New()
	seedTable(t, s)
	ctx := context.Background()
	if err := s.InsertReservation(ctx, booking("a", 1140, 1230)); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertReservation(ctx, booking("b", 1200, 1290)); !errors.Is(err, repository.ErrOverlap) {
		t.Fatalf("err = %v, want ErrOverlap", err)
	}
	if err := s.InsertReservation(ctx, booking("c", 1230, 1320)); err != nil {
		t.Fatalf("touching booking rejected: %v", err)
	}
}

func TestUpdateReservationStaleState(t *testing.T) {
	s := New()
	seedTable(t, s)
	ctx := context.Background()
	r := booking("a", 600, 690)
	if err := s.InsertReservation(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Status = model.StatusCancelled
	if err := s.UpdateReservation(ctx, r, model.StatusPending); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateReservation(ctx, r, model.StatusPending); !errors.Is(err, repository.ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}
	// a cancelled booking no longer blocks the table
	if err := s.InsertReservation(ctx, booking("b", 600, 690)); err != nil {
		t.Fatal(err)
	}
}

func TestDuplicateTableNumber(t *testing.T) {
	s := New()
	seedTable(t, s)
	err := s.CreateTable(context.Background(), &model.Table{ID: "t2", RestaurantID: "r1", TableNumber: 1, Capacity: 2, MinCapacity: 1})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestListWaitingIsFIFO(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c"} {
		e := &model.WaitlistEntry{ID: id, RestaurantID: "r1", Date: "2026-10-20", Status: model.WaitlistWaiting, CreatedAt: at}
		if err := s.InsertWaitlistEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.ListWaiting(ctx, "r1", "2026-10-20")
	if len(got) != 3 || got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Fatalf("order = %v", got)
	}
}

func TestFindEligibleTablesOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	tables := []model.Table{
		{ID: "x", RestaurantID: "r1", TableNumber: 7, Capacity: 6, MinCapacity: 1, IsActive: true},
		{ID: "y", RestaurantID: "r1", TableNumber: 5, Capacity: 4, MinCapacity: 1, IsActive: true},
		{ID: "z", RestaurantID: "r1", TableNumber: 2, Capacity: 4, MinCapacity: 1, IsActive: true},
		{ID: "w", RestaurantID: "r1", TableNumber: 1, Capacity: 2, MinCapacity: 1, IsActive: true},
		{ID: "v", RestaurantID: "r1", TableNumber: 3, Capacity: 8, MinCapacity: 5, IsActive: true},
	}
	for i := range tables {
		if err := s.CreateTable(ctx, &tables[i]); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.FindEligibleTables(ctx, "r1", 3)
	var ids []string
	for _, tb := range got {
		ids = append(ids, tb.ID)
	}
	want := []string{"z", "y", "x"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

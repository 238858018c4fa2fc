package catalog

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/repository/memory"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T) (*Catalog, string) {
	t.Helper()
	ctx := context.Background()
	c := New(memory.New(), quietLogger())
	r, err := c.CreateRestaurant(ctx, RestaurantInput{Name: ptr("Trattoria"), OpeningTime: ptr("10:00"), ClosingTime: ptr("22:00")})
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range []TableInput{
		{TableNumber: ptr(1), Capacity: ptr(6), MinCapacity: ptr(3)},
		{TableNumber: ptr(2), Capacity: ptr(4)},
		{TableNumber: ptr(3), Capacity: ptr(2)},
		{TableNumber: ptr(4), Capacity: ptr(4)},
		{TableNumber: ptr(5), Capacity: ptr(8), IsActive: ptr(false)},
	} {
		if _, err := c.CreateTable(ctx, r.ID, in); err != nil {
			t.Fatal(err)
		}
	}
	return c, r.ID
}

func TestFindEligibleBestFitOrder(t *testing.T) {
	c, rid := seed(t)
	tables, err := c.FindEligible(context.Background(), rid, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{3, 2, 4}
	if len(tables) != len(want) {
		t.Fatalf("got %d tables, want %d", len(tables), len(want))
	}
	for i, tb := range tables {
		if tb.TableNumber != want[i] {
			t.Fatalf("position %d: table %d, want %d", i, tb.TableNumber, want[i])
		}
	}
}

func TestFindOptimal(t *testing.T) {
	c, rid := seed(t)
	ctx := context.Background()
	cases := []struct {
		party int
		want  int // table number, 0 for none
	}{
		{1, 3},
		{3, 2},
		{4, 2},
		{5, 1},
		{7, 0}, // only the inactive table is big enough
	}
	for _, tc := range cases {
		got, err := c.FindOptimal(ctx, rid, tc.party)
		if err != nil {
			t.Fatal(err)
		}
		switch {
		case tc.want == 0 && got != nil:
			t.Errorf("party %d: got table %d, want none", tc.party, got.TableNumber)
		case tc.want != 0 && (got == nil || got.TableNumber != tc.want):
			t.Errorf("party %d: got %v, want table %d", tc.party, got, tc.want)
		}
	}
}

func TestSuggestAlternativesIsRelaxed(t *testing.T) {
	c, rid := seed(t)
	got, err := c.SuggestAlternatives(context.Background(), rid, 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	// Capacity >= 5 among active tables: only table 1 (6 seats), which
	// cannot actually seat 7.
	if len(got) != 1 || got[0].TableNumber != 1 {
		t.Fatalf("got %+v", got)
	}

	got, _ = c.SuggestAlternatives(context.Background(), rid, 3, 2)
	// |cap-3|: t2=1, t4=1, t3=1, t1=3; ties by table number.
	if len(got) != 2 || got[0].TableNumber != 2 || got[1].TableNumber != 3 {
		t.Fatalf("got %+v", got)
	}
}

func TestCreateTableValidation(t *testing.T) {
	c, rid := seed(t)
	ctx := context.Background()
	_, err := c.CreateTable(ctx, rid, TableInput{TableNumber: ptr(2), Capacity: ptr(4)})
	if !apperror.Is(err, apperror.InvalidInput) {
		t.Fatalf("duplicate number: err = %v", err)
	}
	_, err = c.CreateTable(ctx, rid, TableInput{TableNumber: ptr(9), Capacity: ptr(2), MinCapacity: ptr(3)})
	if !apperror.Is(err, apperror.InvalidInput) {
		t.Fatalf("min above capacity: err = %v", err)
	}
	_, err = c.CreateTable(ctx, "nope", TableInput{TableNumber: ptr(9), Capacity: ptr(2)})
	if !apperror.Is(err, apperror.NotFound) {
		t.Fatalf("unknown restaurant: err = %v", err)
	}
}

func TestRestaurantHoursValidation(t *testing.T) {
	c := New(memory.New(), quietLogger())
	ctx := context.Background()
	_, err := c.CreateRestaurant(ctx, RestaurantInput{Name: ptr("x"), OpeningTime: ptr("25:00"), ClosingTime: ptr("22:00")})
	if !apperror.Is(err, apperror.InvalidTimeFormat) {
		t.Fatalf("err = %v", err)
	}
	_, err = c.CreateRestaurant(ctx, RestaurantInput{Name: ptr("x"), OpeningTime: ptr("9:00"), ClosingTime: ptr("09:00")})
	if !apperror.Is(err, apperror.InvalidInput) {
		t.Fatalf("equal hours: err = %v", err)
	}
	r, err := c.CreateRestaurant(ctx, RestaurantInput{Name: ptr("Late"), OpeningTime: ptr("22:00"), ClosingTime: ptr("2:00")})
	if err != nil {
		t.Fatal(err)
	}
	if r.ClosingTime != "02:00" || !r.CrossesMidnight() {
		t.Fatalf("closing %q, crosses=%v", r.ClosingTime, r.CrossesMidnight())
	}
	got, err := c.Restaurant(ctx, r.ID)
	if err != nil || got.TotalTables != 0 {
		t.Fatalf("got %+v, %v", got, err)
	}
}

type countingInvalidator struct{ calls []string }

func (i *countingInvalidator) InvalidateRestaurant(_ context.Context, restaurantID string) error {
	i.calls = append(i.calls, restaurantID)
	return nil
}

func TestChangesInvalidateRestaurant(t *testing.T) {
	inv := &countingInvalidator{}
	c := New(memory.New(), quietLogger(), WithInvalidator(inv))
	ctx := context.Background()

	r, err := c.CreateRestaurant(ctx, RestaurantInput{Name: ptr("Trattoria"), OpeningTime: ptr("10:00"), ClosingTime: ptr("22:00")})
	if err != nil {
		t.Fatal(err)
	}
	if len(inv.calls) != 0 {
		t.Fatalf("new restaurant invalidated: %v", inv.calls)
	}
	tb, err := c.CreateTable(ctx, r.ID, TableInput{TableNumber: ptr(1), Capacity: ptr(4)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.UpdateTable(ctx, tb.ID, TableInput{IsActive: ptr(false)}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UpdateRestaurant(ctx, r.ID, RestaurantInput{ClosingTime: ptr("21:00")}); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteTable(ctx, tb.ID); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteTable(ctx, tb.ID); !apperror.Is(err, apperror.NotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
	if len(inv.calls) != 4 {
		t.Fatalf("invalidations = %v, want 4", inv.calls)
	}
	for _, id := range inv.calls {
		if id != r.ID {
			t.Fatalf("invalidated %q, want %q", id, r.ID)
		}
	}
}

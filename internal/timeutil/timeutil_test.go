package timeutil

import (
	"errors"
	"math/rand"
	"slices"
	"testing"
)

func TestToMinutes(t *testing.T) {
	cases := []struct {
		in   string
		want int
		err  bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"9:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"1230", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}
	for _, c := range cases {
		got, err := ToMinutes(c.in)
		if c.err {
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("ToMinutes(%q) err = %v, want ErrInvalidFormat", c.in, err)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Errorf("ToMinutes(%q) = %d, %v; want %d", c.in, got, err, c.want)
		}
	}
}

func TestAddMinutesWraps(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"19:00", 90, "20:30"},
		{"23:30", 90, "01:00"},
		{"00:15", -30, "23:45"},
		{"12:00", 1440, "12:00"},
	}
	for _, c := range cases {
		got, err := AddMinutes(c.in, c.n)
		if err != nil || got != c.want {
			t.Errorf("AddMinutes(%q, %d) = %q, %v; want %q", c.in, c.n, got, err, c.want)
		}
	}
}

func TestRangesOverlapMatchesIntervalArithmetic(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		s1 := r.Intn(MinutesPerDay)
		e1 := s1 + 1 + r.Intn(240)
		s2 := r.Intn(MinutesPerDay)
		e2 := s2 + 1 + r.Intn(240)
		shared := false
		for m := s1; m < e1; m++ {
			if m >= s2 && m < e2 {
				shared = true
				break
			}
		}
		if got := RangesOverlap(s1, e1, s2, e2); got != shared {
			t.Fatalf("RangesOverlap(%d,%d,%d,%d) = %v, want %v", s1, e1, s2, e2, got, shared)
		}
	}
}

func TestRangesOverlapTouchingEndpoints(t *testing.T) {
	if RangesOverlap(600, 690, 690, 780) {
		t.Error("touching intervals must not overlap")
	}
	if !RangesOverlap(1140, 1230, 1200, 1290) {
		t.Error("[19:00,20:30) and [20:00,21:30) must overlap")
	}
}

func TestGenerateSlotsBoundary(t *testing.T) {
	seq, err := GenerateSlots("10:00", "12:00", 60, 30)
	if err != nil {
		t.Fatal(err)
	}
	var got [][2]string
	for s := range seq {
		got = append(got, [2]string{s.Start, s.End})
	}
	want := [][2]string{{"10:00", "11:00"}, {"10:30", "11:30"}, {"11:00", "12:00"}}
	if !slices.Equal(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
	// the sequence is restartable
	n := 0
	for range seq {
		n++
	}
	if n != 3 {
		t.Fatalf("second pass yielded %d slots", n)
	}
}

func TestGenerateSlotsAcrossMidnight(t *testing.T) {
	seq, err := GenerateSlots("22:00", "02:00", 90, 30)
	if err != nil {
		t.Fatal(err)
	}
	var last Slot
	n := 0
	for s := range seq {
		last = s
		n++
	}
	// 22:00 .. 00:30 starts, last one ends exactly at 02:00
	if n != 6 {
		t.Fatalf("got %d slots, want 6", n)
	}
	if last.Start != "00:30" || last.End != "02:00" || last.EndMinute != 26*60 {
		t.Fatalf("last slot = %+v", last)
	}
}

func TestGenerateSlotsRejectsBadInput(t *testing.T) {
	if _, err := GenerateSlots("10:00", "12:00", 0, 30); err == nil {
		t.Error("expected error for zero duration")
	}
	if _, err := GenerateSlots("10:00", "25:00", 60, 30); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("err = %v, want ErrInvalidFormat", err)
	}
}

func TestHoursIsOpenAtMidnightWrap(t *testing.T) {
	h, err := NewHours("22:00", "02:00")
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{"23:00": true, "01:00": true, "10:00": false, "02:00": false, "22:00": true}
	for clock, want := range cases {
		m, _ := ToMinutes(clock)
		if got := h.IsOpenAt(m); got != want {
			t.Errorf("IsOpenAt(%s) = %v, want %v", clock, got, want)
		}
	}
}

func TestHoursContains(t *testing.T) {
	h, _ := NewHours("10:00", "22:00")
	cases := []struct {
		start, end int
		want       bool
	}{
		{600, 690, true},
		{1230, 1320, true},  // ends exactly at closing
		{1260, 1350, false}, // runs past closing
		{540, 630, false},   // starts before opening
	}
	for _, c := range cases {
		if got := h.Contains(c.start, c.end); got != c.want {
			t.Errorf("Contains(%d,%d) = %v, want %v", c.start, c.end, got, c.want)
		}
	}
}

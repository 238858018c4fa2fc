package availability

import (
	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

// Policy holds the time-of-day rules applied to every booking window.
//
// Peak hours are the half-open hour range [PeakStartHour, PeakEndHour).  A
// booking that starts inside it may last at most MaxPeakDuration minutes.
type Policy struct {
	PeakStartHour   int
	PeakEndHour     int
	MaxPeakDuration int
	SlotInterval    int
}

// DefaultPolicy is 18:00-21:00 peak with a two hour cap and 30 minute slots.
func DefaultPolicy() Policy {
	return Policy{PeakStartHour: 18, PeakEndHour: 21, MaxPeakDuration: 120, SlotInterval: 30}
}

// IsPeak reports whether a wall-clock minute falls in peak hours.
func (p Policy) IsPeak(clock int) bool {
	h := (clock % timeutil.MinutesPerDay) / 60
	return h >= p.PeakStartHour && h < p.PeakEndHour
}

// AdjustDuration returns the longest duration allowed for a booking that
// starts at the wall-clock minute.  Callers compare it with the requested
// duration and reject on mismatch; the request is never shortened.
func (p Policy) AdjustDuration(clock, duration int) int {
	if p.IsPeak(clock) && p.MaxPeakDuration > 0 {
		return min(duration, p.MaxPeakDuration)
	}
	return duration
}

// Window is a validated booking interval on a restaurant's service day.
type Window struct {
	Start       string
	End         string
	StartMinute int
	EndMinute   int
}

// CheckWindow validates a booking of duration minutes starting at start
// against the restaurant's operating hours and the peak-hour cap.
func (p Policy) CheckWindow(r *model.Restaurant, start string, duration int) (Window, error) {
	clock, err := timeutil.ToMinutes(start)
	if err != nil {
		return Window{}, apperror.New(apperror.InvalidTimeFormat, "start time %q is not HH:MM", start)
	}
	h, err := timeutil.NewHours(r.OpeningTime, r.ClosingTime)
	if err != nil {
		return Window{}, err
	}
	s := h.Offset(clock)
	e := s + duration
	if !h.Contains(s, e) {
		return Window{}, apperror.New(apperror.OutsideOperatingHours,
			"%s for %d minutes is outside operating hours %s-%s", start, duration, r.OpeningTime, r.ClosingTime)
	}
	if p.AdjustDuration(clock, duration) != duration {
		return Window{}, apperror.New(apperror.PeakHourDurationExceeded,
			"bookings starting between %02d:00 and %02d:00 may last at most %d minutes",
			p.PeakStartHour, p.PeakEndHour, p.MaxPeakDuration)
	}
	return Window{
		Start:       timeutil.FromMinutes(s),
		End:         timeutil.FromMinutes(e),
		StartMinute: s,
		EndMinute:   e,
	}, nil
}

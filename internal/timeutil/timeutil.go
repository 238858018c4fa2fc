// Package timeutil holds the pure time arithmetic used by the booking
// engine: "HH:MM" parsing, minute arithmetic that wraps at midnight,
// half-open interval overlap and slot enumeration across operating hours.
package timeutil

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of a wall-clock day.
const MinutesPerDay = 24 * 60

// DateLayout is the wire format of service dates.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidFormat is returned for a malformed or out-of-range "HH:MM".
	ErrInvalidFormat = errors.New("invalid time format")
	// ErrInvalidDate is returned for a malformed "YYYY-MM-DD".
	ErrInvalidDate = errors.New("invalid date format")
)

// ToMinutes parses "HH:MM" into minutes since midnight (0-1439).
func ToMinutes(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return h*60 + m, nil
}

// FromMinutes formats minutes as "HH:MM", wrapping modulo 24h.
func FromMinutes(m int) string {
	m %= MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// AddMinutes adds n minutes to "HH:MM", silently rolling past midnight.
func AddMinutes(s string, n int) (string, error) {
	m, err := ToMinutes(s)
	if err != nil {
		return "", err
	}
	return FromMinutes(m + n), nil
}

// RangesOverlap reports whether [s1,e1) and [s2,e2) intersect.  Intervals
// that only touch at an endpoint do not overlap.
func RangesOverlap(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

// ParseDate parses a "YYYY-MM-DD" service date in UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// FormatDate formats t as "YYYY-MM-DD".
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Hours is a restaurant's service day expressed as minute offsets from the
// midnight that starts it.  Close exceeds MinutesPerDay when the restaurant
// closes after midnight.
type Hours struct {
	Open  int
	Close int
}

// NewHours builds the service day for an opening/closing pair.  A closing
// time earlier than the opening time is read as "the next morning".
func NewHours(opening, closing string) (Hours, error) {
	o, err := ToMinutes(opening)
	if err != nil {
		return Hours{}, err
	}
	c, err := ToMinutes(closing)
	if err != nil {
		return Hours{}, err
	}
	if c < o {
		c += MinutesPerDay
	}
	return Hours{Open: o, Close: c}, nil
}

// CrossesMidnight reports whether the service day runs into the next date.
func (h Hours) CrossesMidnight() bool {
	return h.Close > MinutesPerDay
}

// Offset maps a wall-clock minute onto the service day.  On a day that
// crosses midnight, times before opening belong to the next morning.
func (h Hours) Offset(clock int) int {
	if h.CrossesMidnight() && clock < h.Open {
		return clock + MinutesPerDay
	}
	return clock
}

// IsOpenAt reports whether the restaurant is open at the wall-clock minute.
func (h Hours) IsOpenAt(clock int) bool {
	o := h.Offset(clock)
	return o >= h.Open && o < h.Close
}

// Contains reports whether the service-day interval [start, end) lies
// inside operating hours.  end may equal Close: a booking can run right up
// to closing time.
func (h Hours) Contains(start, end int) bool {
	return start >= h.Open && start < h.Close && end > start && end <= h.Close
}

// Slot is one candidate booking window.  StartMinute and EndMinute are
// service-day offsets; Start and End are the wall-clock labels.
type Slot struct {
	Start       string `json:"start_time"`
	End         string `json:"end_time"`
	StartMinute int    `json:"-"`
	EndMinute   int    `json:"-"`
}

// GenerateSlots enumerates windows of the given duration starting at
// opening and stepping by interval, keeping each window whose end does not
// pass closing.  The returned sequence is lazy and may be ranged over any
// number of times.
func GenerateSlots(opening, closing string, duration, interval int) (iter.Seq[Slot], error) {
	if duration <= 0 || interval <= 0 {
		return nil, fmt.Errorf("timeutil: duration and interval must be positive (got %d, %d)", duration, interval)
	}
	h, err := NewHours(opening, closing)
	if err != nil {
		return nil, err
	}
	return func(yield func(Slot) bool) {
		for start := h.Open; start+duration <= h.Close; start += interval {
			s := Slot{
				Start:       FromMinutes(start),
				End:         FromMinutes(start + duration),
				StartMinute: start,
				EndMinute:   start + duration,
			}
			if !yield(s) {
				return
			}
		}
	}, nil
}

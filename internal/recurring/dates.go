package recurring

import (
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

// NextOccurrenceDate returns the first occurrence strictly after from.  It
// reports false when the series is not ACTIVE, has reached its occurrence
// cap, or would pass its end date.
func NextOccurrenceDate(s *model.RecurringSeries, from string) (string, bool) {
	d, err := timeutil.ParseDate(from)
	if err != nil {
		return "", false
	}
	return bounded(s, d.AddDate(0, 0, 1))
}

// FirstOccurrence returns the first occurrence on or after the series'
// start date, subject to the same bounds as NextOccurrenceDate.
func FirstOccurrence(s *model.RecurringSeries) (string, bool) {
	d, err := timeutil.ParseDate(s.StartDate)
	if err != nil {
		return "", false
	}
	return bounded(s, d)
}

// OccurrenceOnOrAfter returns the first occurrence on or after date.
func OccurrenceOnOrAfter(s *model.RecurringSeries, date string) (string, bool) {
	d, err := timeutil.ParseDate(date)
	if err != nil {
		return "", false
	}
	return bounded(s, d)
}

func bounded(s *model.RecurringSeries, from time.Time) (string, bool) {
	if s.Status != model.SeriesActive || s.CapReached() {
		return "", false
	}
	start, err := timeutil.ParseDate(s.StartDate)
	if err != nil {
		return "", false
	}
	if from.Before(start) {
		from = start
	}
	d, ok := onOrAfter(s, start, from)
	if !ok {
		return "", false
	}
	next := timeutil.FormatDate(d)
	if s.EndDate != nil && next > *s.EndDate {
		return "", false
	}
	return next, true
}

// onOrAfter applies the pattern: the first occurrence date >= from, given
// the series start date.
func onOrAfter(s *model.RecurringSeries, start, from time.Time) (time.Time, bool) {
	switch s.Pattern {
	case model.PatternDaily:
		return from, true
	case model.PatternWeekly:
		return nextWeekday(from, weekday(s, start)), true
	case model.PatternBiweekly:
		anchor := nextWeekday(start, weekday(s, start))
		if !from.After(anchor) {
			return anchor, true
		}
		days := int(from.Sub(anchor).Hours() / 24)
		periods := (days + 13) / 14
		return anchor.AddDate(0, 0, periods*14), true
	case model.PatternMonthly:
		dom := start.Day()
		if s.DayOfMonth != nil {
			dom = *s.DayOfMonth
		}
		d := clampDay(from.Year(), from.Month(), dom)
		if d.Before(from) {
			d = clampDay(from.Year(), from.Month()+1, dom)
		}
		return d, true
	}
	return time.Time{}, false
}

func weekday(s *model.RecurringSeries, start time.Time) time.Weekday {
	if s.DayOfWeek != nil {
		return time.Weekday(*s.DayOfWeek)
	}
	return start.Weekday()
}

func nextWeekday(from time.Time, wd time.Weekday) time.Time {
	return from.AddDate(0, 0, (int(wd)-int(from.Weekday())+7)%7)
}

// clampDay returns day dom of the month, or the month's last day when it
// is shorter.  month may overflow into the next year.
func clampDay(year int, month time.Month, dom int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(dom, last)-1)
}

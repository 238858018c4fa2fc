package memory

import (
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneReservation(r model.Reservation) model.Reservation {
	r.SeriesID = cloneStr(r.SeriesID)
	r.CancellationReason = cloneStr(r.CancellationReason)
	r.ConfirmedAt = cloneTime(r.ConfirmedAt)
	r.SeatedAt = cloneTime(r.SeatedAt)
	r.CompletedAt = cloneTime(r.CompletedAt)
	r.CancelledAt = cloneTime(r.CancelledAt)
	return r
}

func cloneEntry(e model.WaitlistEntry) model.WaitlistEntry {
	e.NotifiedAt = cloneTime(e.NotifiedAt)
	e.ReservationID = cloneStr(e.ReservationID)
	return e
}

func cloneSeries(s model.RecurringSeries) model.RecurringSeries {
	s.TableID = cloneStr(s.TableID)
	s.DayOfWeek = cloneInt(s.DayOfWeek)
	s.DayOfMonth = cloneInt(s.DayOfMonth)
	s.EndDate = cloneStr(s.EndDate)
	s.MaxOccurrences = cloneInt(s.MaxOccurrences)
	s.NextOccurrenceDate = cloneStr(s.NextOccurrenceDate)
	s.LastOccurrenceDate = cloneStr(s.LastOccurrenceDate)
	return s
}

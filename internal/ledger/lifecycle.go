package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
)

// Confirm moves a PENDING booking to CONFIRMED.
func (l *Ledger) Confirm(ctx context.Context, id string) (*model.Reservation, []queue.Event, error) {
	return l.Apply(ctx, id, model.ActionConfirm, "")
}

// MarkSeated moves a CONFIRMED booking to SEATED.
func (l *Ledger) MarkSeated(ctx context.Context, id string) (*model.Reservation, []queue.Event, error) {
	return l.Apply(ctx, id, model.ActionSeat, "")
}

// MarkCompleted moves a SEATED booking to COMPLETED.
func (l *Ledger) MarkCompleted(ctx context.Context, id string) (*model.Reservation, []queue.Event, error) {
	return l.Apply(ctx, id, model.ActionComplete, "")
}

// Cancel moves a PENDING or CONFIRMED booking to CANCELLED and releases
// its table window.
func (l *Ledger) Cancel(ctx context.Context, id, reason string) (*model.Reservation, []queue.Event, error) {
	return l.Apply(ctx, id, model.ActionCancel, reason)
}

// MarkNoShow moves a PENDING or CONFIRMED booking to NO_SHOW and releases
// its table window.
func (l *Ledger) MarkNoShow(ctx context.Context, id string) (*model.Reservation, []queue.Event, error) {
	return l.Apply(ctx, id, model.ActionNoShow, "")
}

// Apply performs a lifecycle action.  The write is conditional on the
// status read, so of two racing callers exactly one succeeds and the other
// gets InvalidStateTransition.
func (l *Ledger) Apply(ctx context.Context, id string, action model.Action, reason string) (*model.Reservation, []queue.Event, error) {
	r, err := l.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	from := r.Status
	next, ok := from.Next(action)
	if !ok {
		return nil, nil, apperror.TransitionError("reservation", string(from), string(action))
	}

	now := l.now().UTC()
	r.Status = next
	r.UpdatedAt = now
	switch next {
	case model.StatusConfirmed:
		r.ConfirmedAt = &now
	case model.StatusSeated:
		r.SeatedAt = &now
	case model.StatusCompleted:
		r.CompletedAt = &now
	case model.StatusCancelled:
		r.CancelledAt = &now
		if reason = strings.TrimSpace(reason); reason != "" {
			r.CancellationReason = &reason
		}
	}
	if err := l.store.UpdateReservation(ctx, r, from); err != nil {
		return nil, nil, l.staleAsTransition(ctx, fmt.Errorf("update reservation: %w", err), id, string(action))
	}

	l.invalidate(ctx, r.RestaurantID, r.Date)
	l.log.WithFields(logrus.Fields{
		"reservation_id": r.ID,
		"restaurant_id":  r.RestaurantID,
		"from":           from,
		"to":             next,
	}).Info("reservation status changed")

	var events []queue.Event
	switch next {
	case model.StatusConfirmed:
		events = append(events, queue.Event{Type: queue.ReservationConfirmed, Reservation: r})
	case model.StatusCancelled:
		events = append(events, queue.Event{Type: queue.ReservationCancelled, Reservation: r}, l.freed(ctx, r))
	case model.StatusNoShow:
		events = append(events, queue.Event{Type: queue.ReservationNoShow, Reservation: r}, l.freed(ctx, r))
	}
	return r, events, nil
}

// freed describes the window r released.  The offered capacity is that of
// the table; when the table is gone the party size is the best estimate.
func (l *Ledger) freed(ctx context.Context, r *model.Reservation) queue.Event {
	capacity := r.PartySize
	if t, err := l.store.GetTable(ctx, r.TableID); err == nil {
		capacity = t.Capacity
	} else {
		l.log.WithError(err).WithField("table_id", r.TableID).Warn("freed slot: table lookup failed")
	}
	return queue.Event{
		Type:        queue.SlotFreed,
		Reservation: r,
		Freed: &queue.FreedSlot{
			RestaurantID: r.RestaurantID,
			TableID:      r.TableID,
			Date:         r.Date,
			StartTime:    r.StartTime,
			EndTime:      r.EndTime,
			StartMinute:  r.StartMinute,
			EndMinute:    r.EndMinute,
			Capacity:     capacity,
		},
	}
}
